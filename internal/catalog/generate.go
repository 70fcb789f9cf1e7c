package catalog

// This file documents code generation for the catalog package.
//
// To regenerate the schema snapshot from migrations:
//   go generate ./internal/catalog

//go:generate sh -c "cd ../.. && go run internal/catalog/tools/generate_schema.go"
