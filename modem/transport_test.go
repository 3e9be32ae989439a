package modem

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "gsm: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "gsm: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	tests := []struct {
		name   string
		dialer SerialDialer
	}{
		{
			name: "Explicit mode",
			dialer: SerialDialer{
				PortName: "/dev/nonexistent",
				Mode: &serial.Mode{
					BaudRate: 115200,
					Parity:   serial.NoParity,
					DataBits: 8,
					StopBits: serial.OneStopBit,
				},
			},
		},
		{
			name:   "Baud rate only",
			dialer: SerialDialer{PortName: "/dev/nonexistent", BaudRate: 9600},
		},
		{
			name:   "Defaults",
			dialer: SerialDialer{PortName: "/dev/nonexistent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := tt.dialer.Dial(context.Background())

			if err == nil {
				t.Error("expected error for non-existent port")
			}
			if transport != nil {
				t.Error("expected nil transport for non-existent port")
			}
		})
	}
}

func TestDialerFunc(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := NewMockTransport(ctrl)
	var dialer Dialer = DialerFunc(func(context.Context) (Transport, error) {
		return mockTransport, nil
	})

	transport, err := dialer.Dial(context.Background())
	if err != nil {
		t.Errorf("unexpected dial error: %v", err)
	}
	if transport != mockTransport {
		t.Error("expected mock transport to be returned")
	}
}

func TestDialerInterface_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	dialError := errors.New("dial failed")

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(nil, dialError)

	transport, err := mockDialer.Dial(ctx)
	if err != dialError {
		t.Errorf("expected dial error, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport on error")
	}
}

func TestTestTransport(t *testing.T) {
	tr := NewTestTransport()
	tr.Feed("hello world")

	buf := make([]byte, 5)
	n, err := tr.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("expected first 5 bytes, got %q (err %v)", buf[:n], err)
	}

	rest := make([]byte, 64)
	n, _ = tr.Read(rest)
	if string(rest[:n]) != " world" {
		t.Errorf("expected remainder on the next read, got %q", rest[:n])
	}

	if n, err := tr.Read(rest); n != 0 || err != nil {
		t.Errorf("expected empty non-blocking read, got n=%d err=%v", n, err)
	}

	tr.Close()
	if _, err := tr.Write([]byte("AT\r")); err == nil {
		t.Error("expected write after close to fail")
	}
}
