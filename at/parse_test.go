package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/aisms/at"
)

func TestParseIndication(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    at.Indication
		wantErr bool
	}{
		{name: "SIM storage", input: `+CMTI: "SM",3`, want: at.Indication{Storage: "SM", Index: "3"}},
		{name: "Phone storage with spaces", input: `+CMTI: "ME", 17 `, want: at.Indication{Storage: "ME", Index: "17"}},
		{name: "Missing index", input: `+CMTI: "SM"`, wantErr: true},
		{name: "Empty index", input: `+CMTI: "SM",`, wantErr: true},
		{name: "Non numeric index", input: `+CMTI: "SM",3;AT+CMGD=1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := at.ParseIndication(tt.input)
			if tt.wantErr {
				if !errors.Is(err, at.ErrMalformed) {
					t.Fatalf("Expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseReadMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    at.ReadMessage
		wantErr string
	}{
		{
			name:  "Echo off reply",
			input: "\r\n+CMGR: \"REC UNREAD\",\"+15551234567\",,\"24/05/01,10:00:00+00\"\r\nhello\r\n\r\nOK\r\n",
			want:  at.ReadMessage{Sender: "+15551234567", Text: "hello"},
		},
		{
			name:  "Echoed command on first line",
			input: "AT+CMGR=3\r\r\n+CMGR: \"REC READ\",\"+4915112345\",,\"24/05/01,10:00:00+00\"\r\nWhat is the capital of France?\r\n\r\nOK\r\n",
			want:  at.ReadMessage{Sender: "+4915112345", Text: "What is the capital of France?"},
		},
		{
			name:    "Fewer than three lines",
			input:   "\r\nERROR\r",
			wantErr: "expected at least 3 lines, got 2",
		},
		{
			name:    "Header without fields",
			input:   "\r\n+CMS ERROR: 321\r\n\r\n",
			wantErr: "header has no sender field",
		},
		{
			name:    "Empty sender",
			input:   "\r\n+CMGR: \"REC UNREAD\",\"\",,\"24/05/01\"\r\nhello\r\n",
			wantErr: "empty sender",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := at.ParseReadMessage(tt.input)
			if tt.wantErr != "" {
				var parseErr *at.ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("Expected *ParseError, got %v", err)
				}
				if parseErr.Reason != tt.wantErr {
					t.Errorf("Expected reason %q, got %q", tt.wantErr, parseErr.Reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
