package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword       // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errEmptyPassword = errors.New("password must not be empty")
)

type commandLine struct {
	conf        *core.Config
	db          *sqlx.DB
	usrRepo     user.Repository
	usrSvc      user.Service
	followUpSvc followup.Service
	mailSvc     core.EmailService
	validate    *validator.Validate
	translator  ut.Translator
	logger      core.Logger
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         cli.conf.AppName + " administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.remindCmd(),
	)
	return root
}

// run executes the command line args (without program name), writing output to out.
func (cli *commandLine) run(args []string, out io.Writer) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.Execute()
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// describeErr flattens validation errors into "field: message" pairs.
func (cli *commandLine) describeErr(err error) error {
	var msgs []string
	switch origErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, vErr := range origErr {
			msgs = append(msgs, vErr.Field()+": "+vErr.Translate(cli.translator))
		}
	case *core.ValidationError:
		for _, fErr := range origErr.Fields {
			msgs = append(msgs, fErr.Field+": "+fErr.Error)
		}
	}
	if len(msgs) == 0 {
		return err
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
