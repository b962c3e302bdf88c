// Package config provides configuration structures and loading for mpasite.
//
// Configuration is layered, lowest precedence first:
//
//  1. built-in defaults (NewConfig)
//  2. the YAML file (.mpasite.yaml in the working directory, the XDG config
//     directory or the home directory)
//  3. the PORT environment variable
//  4. MPASITE_* environment variables (MPASITE_ENHANCE_IMAGES=false, ...)
//  5. command-line flags, applied by the cmd package
//
// Layers 2 to 4 are read with koanf into a File, and File values are merged
// over the defaults with Config.Apply.
package config
