package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	netmail "net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type part struct {
	contentType string
	filename    string
	body        string
}

func parse(t *testing.T, raw []byte) (*netmail.Message, []part) {
	t.Helper()
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	var parts []part
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		body := string(data)
		if p.Header.Get("Content-Transfer-Encoding") == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\r\n", ""))
			require.NoError(t, err)
			body = string(decoded)
		}
		parts = append(parts, part{
			contentType: p.Header.Get("Content-Type"),
			filename:    p.FileName(),
			body:        body,
		})
	}
	return msg, parts
}

func TestBuild_TextWithAttachment(t *testing.T) {
	analysis := strings.Repeat("Chief complaint: chest pain. ", 20)
	raw, err := Build(Message{
		ID:       "<abc@clinic.example>",
		From:     "intake@clinic.example",
		To:       "doctor@clinic.example",
		Subject:  "Patient Intake Analysis - Transcript 7",
		TextBody: "Please find the patient intake analysis attached.",
		Attachments: []Attachment{{
			Filename:    "analysis_7.txt",
			ContentType: "text/plain",
			Data:        []byte(analysis),
		}},
	})
	require.NoError(t, err)

	msg, parts := parse(t, raw)
	assert.Equal(t, "Patient Intake Analysis - Transcript 7", msg.Header.Get("Subject"))
	assert.Equal(t, "doctor@clinic.example", msg.Header.Get("To"))
	assert.Equal(t, "<abc@clinic.example>", msg.Header.Get("Message-ID"))

	require.Len(t, parts, 2)
	assert.Equal(t, "text/plain; charset=utf-8", parts[0].contentType)
	assert.Equal(t, "Please find the patient intake analysis attached.", parts[0].body)
	assert.Equal(t, "analysis_7.txt", parts[1].filename)
	assert.Equal(t, analysis, parts[1].body)
}

func TestBuild_HTMLAndEncodedSubject(t *testing.T) {
	raw, err := Build(Message{To: "a@b.com", Subject: "Résumé ready", HTMLBody: "<h1>Done</h1>"})
	require.NoError(t, err)

	msg, parts := parse(t, raw)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Résumé ready", subject)
	require.Len(t, parts, 1)
	assert.Equal(t, "text/html; charset=utf-8", parts[0].contentType)
	assert.Equal(t, "<h1>Done</h1>", parts[0].body)
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build(Message{TextBody: "x"})
	assert.Error(t, err)
	_, err = Build(Message{To: "a@b.com"})
	assert.Error(t, err)
}

func TestGmailSender_Send(t *testing.T) {
	var raw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		var body gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-123"}`))
	}))
	defer server.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/"),
	)
	require.NoError(t, err)

	s := NewGmailSenderWithService(svc, "coop@example.com")
	id, err := s.Send(context.Background(), Message{To: "jane@example.com", Subject: "Your processed attachment", HTMLBody: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg, _ := parse(t, decoded)
	assert.Equal(t, "coop@example.com", msg.Header.Get("From"))
}

func TestSMTPSender_RequiresHost(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{}).Send(context.Background(), Message{To: "a@b.com", TextBody: "x"})
	assert.Error(t, err)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "clinic.example", domainOf("intake@clinic.example"))
	assert.Equal(t, "localhost", domainOf(""))
}
