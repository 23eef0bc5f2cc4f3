package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"sac/internal/datasource"
)

var dataArgs struct {
	datasource.Args
	out string
}

var dataCmd = &cobra.Command{
	Use:   "data <TYPE>",
	Short: "Fetch and filter EcoleDirecte records by type",
	Long: `Fetch one record type and print it as JSON.

Types: ` + strings.Join(datasource.Kinds, ", ") + `

EDT dates accept today, yesterday, tomorrow, week, nextweek, lastweek,
YYYY-MM-DD, YYYY-MM-DD:YYYY-MM-DD or start=YYYY-MM-DD,end=YYYY-MM-DD.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		result, err := datasource.NewFromConfig().GetData(ctx, args[0], dataArgs.Args)
		if err != nil {
			return err
		}
		return writeJSON(cmd, dataArgs.out, result)
	},
}

func init() {
	f := dataCmd.Flags()
	f.StringVar(&dataArgs.Classe, "classe", "", "Class id")
	f.StringVar(&dataArgs.Salle, "salle", "", "Room label or code")
	f.StringVar(&dataArgs.Matiere, "matiere", "", "Subject keyword (PROFESSEURS)")
	f.StringVar(&dataArgs.Prof, "prof", "", "Teacher keyword (EDT)")
	f.StringVar(&dataArgs.Search, "search", "", "Free text filter")
	f.StringVar(&dataArgs.Date, "date", "", "Date option (EDT)")
	f.StringVar(&dataArgs.out, "out", "", "Write JSON to this file instead of stdout")
}
