package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

type addUserParams struct {
	name      string
	username  string
	email     string
	role      string
	branchIDs []int64
	password  string
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var p addUserParams
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one with the same username",
		Long: `Create a user, or update the one with the same username.
The password is prompted next. Supervisors need at least one --branch,
marketing users exactly one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd, "Enter password: ")
			if err != nil {
				return err
			}
			p.password = pwd

			usr, created, err := cli.addUser(cmd.Context(), p)
			if err != nil {
				return cli.describeErr(err)
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, id %d)\n", verb, usr.Username, usr.Role, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.name, "name", "", "full name (defaults to the username)")
	cmd.Flags().StringVar(&p.username, "username", "", "login username")
	cmd.Flags().StringVar(&p.email, "email", "", "email address")
	cmd.Flags().StringVar(&p.role, "role", "", "one of super_user (default for new users), supervisor, marketing")
	cmd.Flags().Int64SliceVar(&p.branchIDs, "branch", nil, "branch ID (repeatable)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, p addUserParams) (user.User, bool, error) {
	uname := core.CleanString(p.username, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, false, err
		}

		name, role := p.name, p.role
		if name == "" {
			name = uname
		}
		if role == "" {
			role = user.RoleSuperUser
		}
		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           p.email,
			Password:        p.password,
			PasswordConfirm: p.password,
			Role:            role,
			BranchIDs:       p.branchIDs,
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return user.User{}, false, err
		}
		usr, err = cli.usrSvc.Create(ctx, nu)
		return usr, err == nil, err
	}

	active := true
	uu := user.UpdateUser{
		Name:            p.name,
		Email:           p.email,
		IsActive:        &active,
		Role:            p.role,
		BranchIDs:       p.branchIDs,
		Password:        p.password,
		PasswordConfirm: p.password,
	}
	if err = uu.Validate(ctx, usr, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, false, err
	}
	usr, err = cli.usrSvc.Update(ctx, usr, uu)
	return usr, false, err
}
