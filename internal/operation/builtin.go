package operation

import "sync"

// ServerIDParam is the server selector accepted by run. Zero lets the
// measurement tool pick the closest server.
var ServerIDParam = Param{
	Name:        "serverid",
	Kind:        KindUint,
	Default:     0,
	Description: "Speedtest server ID (0 selects automatically)",
}

var builtin = []Operation{
	{Name: "version", Command: "speedtest version", Endpoint: "version", Sync: SyncSimple,
		Description: "Report which measurement tool is installed"},
	{Name: "serverlist", Command: "speedtest serverlist", Endpoint: "serverlist", Sync: SyncSimple,
		Description: "List nearby measurement servers"},
	{Name: "run", Command: "speedtest run", Endpoint: "run", Sync: SyncParameterized,
		Params: []Param{ServerIDParam}, Description: "Run a measurement"},
	{Name: "showstat", Command: "speedtest showstat", Endpoint: "showstat", Sync: SyncSimple,
		Description: "Summarize stored results"},
	{Name: "showlog", Command: "speedtest showlog", Endpoint: "showlog", Sync: SyncSimple,
		Description: "Show the most recent results"},
	{Name: "deletelog", Command: "speedtest deletelog", Endpoint: "deletelog", Sync: SyncSimple,
		Description: "Delete stored results"},
	{Name: "install-http", Command: "speedtest install-http", Endpoint: "installhttp", Sync: SyncSimple,
		Description: "Install the HTTP based speedtest-cli"},
	{Name: "install-socket", Command: "speedtest install-socket", Endpoint: "installsocket", Sync: SyncSimple,
		Description: "Install the socket based Ookla binary"},
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of built-in speedtest operations.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(builtin...)
		if err != nil {
			panic("operation: invalid builtin table: " + err.Error())
		}
		defaultRegistry = r
	})
	return defaultRegistry
}
