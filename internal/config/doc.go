// Package config resolves client credentials from the environment and rc
// files.
//
// Precedence, highest first:
//   - explicit overrides (CLI flags or caller-supplied values)
//   - environment variables (CDSAPI_URL, CDSAPI_KEY, CDSAPI_VERIFY)
//   - rc file: CDSAPI_RC path, then ./.cdsapirc, then ~/.cdsapirc
//
// Only the first existing rc file is read. An rc file is a small YAML
// mapping:
//
//	url: https://cds.climate.copernicus.eu/api
//	key: <personal-access-token>
//	verify: 1
//
// The historical variant where the value sits on the line after a bare
// `key:` is also accepted.
package config
