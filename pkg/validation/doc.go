// Package validation bounds, decodes and schema-checks JSON request bodies.
//
// A BodyValidator rejects, in order:
//
//	415 UNSUPPORTED_MEDIA_TYPE  content type outside the allow-list
//	413 PAYLOAD_TOO_LARGE       body larger than MaxBytes
//	400 INVALID_JSON            malformed JSON
//	422 VALIDATION_FAILED       JSON schema violations, with field details
//
// Schemas are compiled with santhosh-tekuri/jsonschema:
//
//	schema := validation.MustCompileSchema("schedule", scheduleSchemaJSON)
//	v := validation.NewBodyValidator(validation.Config{Schema: schema, Sanitize: true})
//
// Bodies accepted by the validation stage are stored in the request context;
// read them back with BodyFrom or DecodeBody.
package validation
