package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/fs"
	"github.com/arishrdi/leads-aladdin-sub001/services/logger"
)

func setup(t *testing.T) (*core.Config, core.Logger) {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	ResetSentMessages()
	return conf, logger
}

func TestEmailTemplates(t *testing.T) {
	conf := core.NewTestConfig()
	obs, logs := observer.New(zapcore.ErrorLevel)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logsvc.NewRollbarLogger(zap.New(obs), conf))
	require.Empty(t, logs.AllUntimed(), "parsing templates logged errors")

	entry := map[string]interface{}{"Stage": "Kontak awal", "Attempt": 2, "CustomerName": "Pak Harun", "Phone": "6281234567890", "Time": "05/03 10:00"}
	tests := []struct {
		name     string
		data     map[string]interface{}
		wantText []string
	}{
		{
			name:     "password_reset",
			data:     map[string]interface{}{"Name": "Budi", "UID": "ab", "Token": "cd-ef"},
			wantText: []string{"Halo Budi", conf.FrontendBaseURL + "/password-reset/ab/cd-ef"},
		},
		{
			name: "lead_assigned",
			data: map[string]interface{}{
				"OwnerName": "Rina", "CustomerName": "Pak Harun", "Institution": "Masjid Al Ikhlas",
				"Phone": "6281234567890", "Stage": "presentasi", "LeadID": 12,
			},
			wantText: []string{"Halo Rina", "Pak Harun (Masjid Al Ikhlas)", conf.FrontendBaseURL + "/leads/12"},
		},
		{
			name: "followup_reminder",
			data: map[string]interface{}{
				"Name": "Budi", "Date": "05/03/2024",
				"Due": []map[string]interface{}{entry}, "Overdue": []map[string]interface{}{entry},
			},
			wantText: []string{"Halo Budi", "05/03/2024", "[Kontak awal #2] Pak Harun", "Overdue:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &core.EmailMessage{TemplateName: tt.name, TemplateData: tt.data}
			require.NoError(t, msg.Render(conf.FrontendBaseURL))
			require.True(t, msg.HasContent())
			for _, want := range tt.wantText {
				assert.Contains(t, msg.TextContent, want)
			}
			assert.Contains(t, msg.TextContent, "Leads Aladdin") // layout footer
			assert.Contains(t, msg.HTMLContent, "<html")
		})
	}
}

func TestConsoleService(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	conf, logger := setup(t)

	svc := NewConsoleService(conf, logger).(*consoleService)
	svc.disableOutput = true
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Budi", Address: "budi@example.com"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Budi", "UID": "ab", "Token": "cd-ef"},
		},
		&core.EmailMessage{
			To:      []mail.Address{{Address: "siti@example.com"}},
			Subject: "Hello",
			BodyStr: "plain text body",
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
	)
	svc.Wait()

	sent := SentMessages()
	require.Len(t, sent, 2)
	bySubject := make(map[string]core.EmailMessage, len(sent))
	for _, msg := range sent {
		bySubject[msg.Subject] = msg
	}

	reset := bySubject["Password Reset"]
	assert.Contains(t, reset.TextContent, "Halo Budi")
	assert.Contains(t, reset.TextContent, conf.FrontendBaseURL+"/password-reset/ab/cd-ef")
	assert.NotEmpty(t, reset.HTMLContent)

	hello := bySubject["Hello"]
	assert.Equal(t, "plain text body", hello.TextContent)
	assert.Empty(t, hello.HTMLContent)
}

func TestConsoleServiceMock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	conf, logger := setup(t)

	svc := NewConsoleServiceMock(conf, logger)
	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: "siti@example.com"}},
		Subject: "Attachment",
		BodyStr: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "leads.csv", "text/csv"))
	svc.SendMessages(msg) // synchronous

	sent := SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "leads.csv", sent[0].Attachments[0].Filename)
}

func TestSendgridPrepare(t *testing.T) {
	conf, logger := setup(t)
	conf.SendgridAPIKey = "key"

	svc := NewSendgridService(conf, logger)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Budi", Address: "budi@example.com"}},
		Cc:          []mail.Address{{Address: "spv@example.com"}},
		Subject:     "Reminder",
		TextContent: "text",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Leads Aladdin] Reminder", m.Personalizations[0].Subject)
	assert.Equal(t, "budi@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "spv@example.com", m.Personalizations[0].CC[0].Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, conf.DefaultFromEmail.Address, m.From.Address)
}
