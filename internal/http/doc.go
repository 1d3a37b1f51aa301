// Package http exposes the daybook services over HTTP.
//
// Public endpoints:
//   - POST /shorten-link: body {"url"}; responds {"short_url","code"}.
//   - ANY /redirect-link/{code} or /redirect-link?code=: 302 to the stored
//     destination. Failures are plain text since browsers follow these links.
//   - GET /l/{code}: the public form of the short URL, same as redirect-link.
//
// Bearer protected endpoints:
//   - POST /admin-create-user: admin only; body {"email","password",
//     "first_name","last_name","make_admin"}; responds
//     {"success","user_id","email"}.
//   - POST /calendar-blocks, GET /calendar-blocks/{id},
//     DELETE /calendar-blocks/{id}?scope=this|all&occurrence_date=YYYY-MM-DD,
//     PUT /calendar-blocks/{id}/pause, GET /calendar-blocks/{id}/calendar.ics.
//   - GET /calendar-blocks/occurrences?from=&to=: expanded occurrences.
//
// Every response carries Access-Control-Allow-Origin: * and OPTIONS
// requests are answered directly by the CORS middleware.
package http
