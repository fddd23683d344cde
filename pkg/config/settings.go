package config

// CaptureDirName is the directory under the working directory where capture
// files and named pipes are created.
const CaptureDirName = "captures"

type RsniffSettings struct {
	UserSpecifiedDevice            string
	UserSpecifiedInterface         string
	UserSpecifiedFilter            string
	UserSpecifiedRemoteTcpdumpPath string
	UserSpecifiedViewerMode        bool
	UserSpecifiedVerboseMode       bool
	DetectedViewerPath             string
	CaptureStartTime               string
}

func NewRsniffSettings() *RsniffSettings {
	return &RsniffSettings{}
}
