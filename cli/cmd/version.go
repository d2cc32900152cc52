package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/cli/render"
	"github.com/pithecene-io/cellsolve/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	ContractVersion string `json:"contract_version"`
	SearchVersion   string `json:"search_version"`
	Commit          string `json:"commit"`
}

// VersionCommand returns the version command. It reports the bridge and
// search driver versions and never contacts a host.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show bridge and search driver versions",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "search",
				Usage: "Print only the search driver version",
			},
		),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		if c.Bool("search") {
			return r.Render(map[string]string{"search_version": types.SearchVersion})
		}

		return r.Render(VersionResponse{
			Version:         types.Version,
			ContractVersion: types.ContractVersion,
			SearchVersion:   types.SearchVersion,
			Commit:          commit,
		})
	}
}
