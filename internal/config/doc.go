// Package config loads server configuration from gavi.json. The file is
// optional: commands fall back to built-in defaults, and flags override
// whatever the file says.
package config
