package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "presence.interval_ms")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Presence ─────────────────────────────────────────────────
	"presence": {
		Comment: "Upstream presence API.\nPRESENCE_USER_ID and PRESENCE_BASE_URL in the environment (or a .env file\nin the data directory or working directory) override these values.",
	},
	"presence.user_id": {
		Comment: "Presence ID of the user to watch. Leave empty to run without polling;\n/presence then always answers 204.",
		Alternatives: []string{
			`user_id = "123456789012345678"`,
		},
	},
	"presence.base_url": {
		Comment: "Watcher endpoint. The user ID is appended as the last path segment.",
	},
	"presence.interval_ms": {
		Comment: "Refresh period in milliseconds (minimum 500).",
	},
	"presence.request_timeout_seconds": {
		Comment: "Upper bound for one request. 0 disables the bound, in which case a hung\nrequest is only abandoned when the next tick cancels it.",
	},
	"presence.retry_max": {
		Comment: "Transport retries inside a single tick (0-5). The next tick already retries,\nso 0 is usually right.",
	},
	"presence.idle_markers": {
		Comment: "Activity details strings that mean the editor has no file open.\nMatching activities are never displayed.",
	},

	// ── Display ──────────────────────────────────────────────────
	"display": {
		Comment: "Which activity is shown when no music is playing.",
	},
	"display.prefer_editor": {
		Comment: "Show the first editor activity even when another activity comes first.",
		Alternatives: []string{
			`prefer_editor = true`,
		},
	},
	"display.editor_label": {
		Comment: "Shown as \"Using <label>\" for an editor that is open but not on a file.",
	},

	// ── Languages ────────────────────────────────────────────────
	"languages": {
		Comment: "Extra icon codes for language detection, keyed by the file name of the\nactivity's large image (\".../icons/<code>.png\"). Unknown codes are uppercased.",
		Alternatives: []string{
			`[languages]`,
			`zig = "Zig"`,
			`ex = "Elixir"`,
		},
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy": {
		Comment: "File names matching any pattern are replaced with hidden_text.\nPatterns use doublestar syntax and are tried against the full target and its base name.",
	},
	"privacy.hide_files": {},
	"privacy.hidden_text": {},

	// ── Server ───────────────────────────────────────────────────
	"server": {
		Comment: "HTTP endpoint for the presence widget: GET /presence, /healthz, /metrics",
	},
	"server.listen": {
		Alternatives: []string{
			`listen = "0.0.0.0:8787"`,
		},
	},
	"server.metrics": {
		Comment: "Expose Prometheus metrics on /metrics.",
	},

	// ── History ──────────────────────────────────────────────────
	"history": {
		Comment: "Distinct displayed lines are stored in history.db and served on GET /history.",
	},
	"history.enabled": {
		Alternatives: []string{
			`enabled = false`,
		},
	},
	"history.retention_days": {
		Comment: "Entries older than this are pruned hourly. 0 keeps everything.",
	},

	// ── Update ───────────────────────────────────────────────────
	"update": {
		Comment: "Release check",
	},
	"update.check": {
		Comment: "Look up the latest release once at startup and log when a newer one exists.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "trace"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
	"log.stderr": {
		Comment: "Also write log lines to stderr (useful under a service manager).",
	},
}
