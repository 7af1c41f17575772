package manifest

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// ConfigureLogging sets up the commonlog backend from the [log] section.
// An empty file logs to stderr.
func (m *Manifest) ConfigureLogging() {
	var path *string
	if p := m.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity, path)
}
