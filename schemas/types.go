package schema

// Pipeline mirrors #Pipeline. Values are decoded from a unified, concrete
// CUE value so every defaulted field is populated.
type Pipeline struct {
	ForgeVersion  string                       `json:"forgeVersion"`
	App           string                       `json:"app"`
	DefaultBranch string                       `json:"defaultBranch"`
	Release       Release                      `json:"release"`
	Image         Image                        `json:"image"`
	Chart         Chart                        `json:"chart"`
	Retry         Retry                        `json:"retry"`
	Environments  map[string]EnvironmentPolicy `json:"environments"`
	Credentials   Credentials                  `json:"credentials"`
}

// Release configures stable release detection and versioning.
type Release struct {
	TagPattern     string `json:"tagPattern"`
	TagPrefix      string `json:"tagPrefix"`
	InitialVersion string `json:"initialVersion"`

	// TagLatest tags the commit of each latest release and pushes the tag
	// to the source repository.
	TagLatest bool `json:"tagLatest"`
}

// Image configures the container image.
type Image struct {
	Registry   string `json:"registry"`
	Repository string `json:"repository"`
	// Tags overrides the tag formats per environment.
	Tags map[string][]string `json:"tags,omitempty"`
}

// Chart configures the chart repository and chart registry.
type Chart struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Path       string `json:"path"`
	ValuesFile string `json:"valuesFile"`
	HostKey    string `json:"hostKey"`
	Registry   string `json:"registry"`
	Author     Author `json:"author"`
}

// Author is the commit identity used in the chart repository.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Retry bounds every network operation.
type Retry struct {
	Attempts int    `json:"attempts"`
	Delay    string `json:"delay"`
	Timeout  string `json:"timeout"`
}

// EnvironmentPolicy selects the stages run for an environment.
type EnvironmentPolicy struct {
	UpdateChart  bool `json:"updateChart"`
	ReleaseChart bool `json:"releaseChart"`
}

// Credentials points at secrets for each collaborator.
type Credentials struct {
	Registry        *Credential `json:"registry,omitempty"`
	ChartRepository *Credential `json:"chartRepository,omitempty"`
	ChartRegistry   *Credential `json:"chartRegistry,omitempty"`
	Source          *Credential `json:"source,omitempty"`
}

// Credential is a secret reference plus an optional user name.
type Credential struct {
	Provider string `json:"provider"`
	Path     string `json:"path"`
	Username string `json:"username,omitempty"`
}
