// Package webhook accepts signed inbound POSTs and enqueues their JSON body
// as a work item on a configured transport.
//
// Each endpoint has its own pre-shared secret. The request body must carry
// an HMAC-SHA256 signature in the endpoint's signature header, either as
// plain hex or in the "sha256=<hex>" form GitHub sends. Endpoints are
// mounted on the API router and do not use the API key.
//
//	api:
//	  webhooks:
//	    - path: /webhook/github
//	      transport: github_push
//	      secret: ${GITHUB_WEBHOOK_SECRET}
//	      signature_header: X-Hub-Signature-256
//	      max_body_size: 1MB
//
// Responses:
//
//   - 202 Accepted with the item id
//   - 400 when the body is not a JSON object
//   - 403 for a missing or wrong signature, with no detail
//   - 413 when the body exceeds max_body_size
//   - 500 when the enqueue fails
package webhook
