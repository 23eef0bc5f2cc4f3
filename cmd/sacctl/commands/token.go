package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sac/internal/config"
	"sac/internal/datasource"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Check or renew the EcoleDirecte API token",
}

var (
	checkInterval time.Duration
	checkOnce     bool
)

var tokenCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll the token until EcoleDirecte rejects it",
	Long: `Poll the token and report how long it stayed valid. With --once the
command exits after a single probe (status 1 if the token is expired).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := datasource.NewFromConfig()
		out := cmd.OutOrStdout()
		start := time.Now()

		for n := 1; ; n++ {
			ok, err := client.ValidateToken(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "token expired after %s (%d checks)\n", formatElapsed(time.Since(start)), n)
				if checkOnce {
					os.Exit(1)
				}
				return nil
			}
			if checkOnce {
				fmt.Fprintln(out, "token valid")
				return nil
			}
			if n%60 == 0 {
				fmt.Fprintf(out, "still valid after %s\n", formatElapsed(time.Since(start)))
			}
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(checkInterval):
			}
		}
	},
}

var (
	renewEnvFile string
	renewWrite   bool
)

var tokenRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Log in with ECOLEDIRECTE_IDENTIFIANT/ECOLEDIRECTE_MDP and print a fresh token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		c := config.Cfg
		res, err := datasource.Login(ctx, datasource.LoginParams{
			BaseURL:     c.EDApiBaseURL,
			Version:     c.EDApiVersion,
			UserAgent:   c.UserAgent,
			Identifiant: c.EDIdentifiant,
			MotDePasse:  c.EDMotDePasse,
			Timeout:     c.UpstreamTimeout,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ECOLEDIRECTE_USER_TOKEN=%s\nECOLEDIRECTE_USER_ID=%s\n", res.Token, res.UserID)

		if !renewWrite {
			return nil
		}
		return updateEnvFile(renewEnvFile, map[string]string{
			"ECOLEDIRECTE_USER_TOKEN": res.Token,
			"ECOLEDIRECTE_USER_ID":    res.UserID,
		})
	},
}

// updateEnvFile merges updates into an env file, creating it if needed.
func updateEnvFile(path string, updates map[string]string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		env = map[string]string{}
	}
	for k, v := range updates {
		if v != "" {
			env[k] = v
		}
	}
	return godotenv.Write(env, path)
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

func init() {
	tokenCheckCmd.Flags().DurationVar(&checkInterval, "interval", time.Second, "Delay between probes")
	tokenCheckCmd.Flags().BoolVar(&checkOnce, "once", false, "Probe once and exit")
	tokenRenewCmd.Flags().BoolVar(&renewWrite, "write", false, "Store the new token in the env file")
	tokenRenewCmd.Flags().StringVar(&renewEnvFile, "env-file", ".env", "Env file updated by --write")

	tokenCmd.AddCommand(tokenCheckCmd)
	tokenCmd.AddCommand(tokenRenewCmd)
}
