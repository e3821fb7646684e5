package client

// Installer deploys an issued certificate into whatever serves it (a
// web server config, a load balancer, a secrets store). A client run
// with no installer configured can still obtain and save certificates;
// it just can't deploy them.
type Installer interface {
	// DeployCert installs certPath/keyPath/chainPath (absolute paths)
	// for domain. chainPath may be empty if no chain was available.
	DeployCert(domain, certPath, keyPath, chainPath string) error

	// Save persists the installer's configuration changes, annotated
	// with a human-readable message describing why.
	Save(message string) error

	// Restart reloads or restarts whatever the installer configured.
	Restart() error
}
