// Package config handles service configuration loading and validation.
// Configuration is read from a YAML file, overlaid with deployment
// environment variables (HF_TOKEN, WHISPER_MODEL, VAD_THRESHOLD, ...), and
// validated section by section before the service starts.
package config
