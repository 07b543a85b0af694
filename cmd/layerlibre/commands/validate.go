package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [catalog]",
	Short: "Check a catalog file without starting the service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultCatalogPath()
		if len(args) == 1 {
			path = args[0]
		}

		cat, err := config.LoadCatalog(path)
		if err != nil {
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				fmt.Printf("%s: %d problem(s)\n", path, len(verr.Problems))
				for _, p := range verr.Problems {
					fmt.Printf("  - %s\n", p)
				}
				return fmt.Errorf("catalog is not valid")
			}
			return err
		}

		fmt.Printf("%s: ok (%d base styles, %d overlays, %d groups)\n",
			path, len(cat.BaseStyles), len(cat.Overlays), len(cat.Groups))
		return nil
	},
}
