package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/namelens/promptc/internal/registry"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppName      = "promptc"
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo records build metadata for /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo      `json:"app"`
	Compiler     CompilerInfo `json:"compiler"`
	Dependencies DepInfo      `json:"dependencies"`
	Runtime      RuntimeInfo  `json:"runtime"`
}

// CompilerInfo describes the prompt formats this build understands.
type CompilerInfo struct {
	SchemaDraft   string `json:"schema_draft"`
	Templates     string `json:"templates"`
	PromptPattern string `json:"prompt_pattern"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler reports build and dependency versions.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()
	writeJSON(w, http.StatusOK, VersionResponse{
		App: AppInfo{
			Name:      AppName,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Compiler: CompilerInfo{
			SchemaDraft:   "draft-07",
			Templates:     "jinja",
			PromptPattern: registry.Pattern,
		},
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	})
}
