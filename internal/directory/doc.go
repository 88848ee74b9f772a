/*
Package directory answers two questions about a browser container: who is it
(display name) and what role does it play.

Sources:

	Memory - an in-process map, also the snapshot behind File
	File   - YAML or TOML document, reloaded on change via fsnotify
	HTTP   - a remote directory service behind a circuit breaker

Every source implements both Resolver and RoleDirectory. Directories are
read-only from courier's side.

File format (YAML):

	containers:
	  work-ctx:
	    name: Work
	    role: engineering

TOML uses the same shape under [containers.<id>] tables.
*/
package directory
