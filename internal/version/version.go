package version

// Version is the current version of linkdrop. Release builds set it with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/linkdrop/internal/version.Version=v1.0.0'"
var Version = "dev"
