package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

var nowFunc = time.Now // mockable

// waiter is implemented by email services that send in the background.
type waiter interface {
	Wait()
}

func (cli *commandLine) remindCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Email every marketing user the follow-ups due today and those overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := nowFunc().In(cli.conf.Timezone)
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, cli.conf.Timezone)
				if err != nil {
					return cli.describeErr(core.NewFieldError("date", "must be a date (YYYY-MM-DD)"))
				}
				day = d
			}

			sent, err := cli.followUpSvc.SendReminders(cmd.Context(), day)
			if err != nil {
				return err
			}
			if w, ok := cli.mailSvc.(waiter); ok {
				w.Wait()
			}
			cli.logger.Info(fmt.Sprintf("sent %d follow-up reminders", sent), map[string]interface{}{"day": day.Format("2006-01-02")})
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d reminders sent for %s\n", sent, day.Format("02/01/2006"))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day of the digest (YYYY-MM-DD), defaults to today")
	return cmd
}
