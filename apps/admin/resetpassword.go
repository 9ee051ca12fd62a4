package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password",
		Long:  "Reset a user's password. The new password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd, "Enter password: ")
			if err != nil {
				return err
			}
			if err = cli.resetPassword(cmd.Context(), uname, pwd); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "password of %s updated\n", uname)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
