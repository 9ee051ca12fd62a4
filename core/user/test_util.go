package user

import (
	"context"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends password reset emails synchronously.
func NewServiceMock(db core.DB, repo Repository, branches BranchChecker, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			db:       db,
			repo:     repo,
			branches: branches,
			mailSvc:  mailSvc,
			conf:     conf,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return nil
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
