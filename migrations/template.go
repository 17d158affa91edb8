package migrations

// GoFileTemplate is the skeleton written by `arcade migrate new --go`.
// Fields: PackageName, Version, Name, UpFileName, DownFileName.
const GoFileTemplate = `package {{.PackageName}}

import (
	_ "embed"

	"github.com/toolsascode/arcade/migrations"
)

//go:embed {{.UpFileName}}
var upSQL{{.Version}} string

//go:embed {{.DownFileName}}
var downSQL{{.Version}} string

func init() {
	migrations.Register(&migrations.Script{
		ID:      {{.Version}},
		Label:   "{{.Name}}",
		UpSQL:   upSQL{{.Version}},
		DownSQL: downSQL{{.Version}},
	})
}
`

// UpFileTemplate and DownFileTemplate are the SQL skeletons written by
// `arcade migrate new`.
const (
	UpFileTemplate = `-- {{.Version}}_{{.Name}} (up)
-- Statements run as one sqlscript command inside a transaction.
`
	DownFileTemplate = `-- {{.Version}}_{{.Name}} (down)
`
)
