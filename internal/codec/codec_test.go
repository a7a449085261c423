package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Payload{
		TicketID:   "3f1d9a2e-1111-4222-8333-444455556666",
		EventID:    "ev-1",
		HolderID:   "h-1",
		HolderName: "Stu Dent",
		IssuedAt:   time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC),
	}

	encoded, err := Encode(p)
	require.NoError(t, err)
	require.LessOrEqual(t, len(encoded), MaxEncodedSize)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestEncodeIsDeterministic(t *testing.T) {
	p := Payload{
		TicketID:   "t-1",
		EventID:    "ev-1",
		HolderID:   "h-1",
		HolderName: "Stu Dent",
		IssuedAt:   time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC),
	}
	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(p)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecodeIsFieldOrderIndependent(t *testing.T) {
	reordered := `{"issued_at":"2025-10-10T10:00:00Z","holder_name":"Stu Dent","holder_id":"h-1","event_id":"ev-1","ticket_id":"t-1"}`
	p, err := Decode(reordered)
	require.NoError(t, err)
	require.Equal(t, "t-1", p.TicketID)
	require.Equal(t, "ev-1", p.EventID)
}

func TestDecodeRejectsForeignInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"plain text", "hello world"},
		{"url", "https://example.com/tickets/view?token=abc"},
		{"json array", `["ticket_id","t-1"]`},
		{"json scalar", `42`},
		{"unknown fields", `{"ticket_id":"t-1","event_id":"e","holder_id":"h","holder_name":"n","issued_at":"2025-10-10T10:00:00Z","extra":true}`},
		{"missing ticket id", `{"event_id":"ev-1","holder_id":"h-1","holder_name":"Stu","issued_at":"2025-10-10T10:00:00Z"}`},
		{"empty ticket id", `{"ticket_id":"","event_id":"ev-1","holder_id":"h-1","holder_name":"Stu","issued_at":"2025-10-10T10:00:00Z"}`},
		{"truncated", `{"ticket_id":"t-1","event_`},
		{"trailing garbage", `{"ticket_id":"t-1","event_id":"e","holder_id":"h","holder_name":"n","issued_at":"2025-10-10T10:00:00Z"} trailing`},
		{"bad timestamp", `{"ticket_id":"t-1","event_id":"e","holder_id":"h","holder_name":"n","issued_at":"not-a-time"}`},
		{"oversized", `{"ticket_id":"` + string(make([]byte, MaxEncodedSize)) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEncodeRequiresTicketID(t *testing.T) {
	_, err := Encode(Payload{EventID: "ev-1"})
	require.Error(t, err)
}

func TestQRPNG(t *testing.T) {
	encoded, err := Encode(Payload{TicketID: "t-1", EventID: "ev-1", HolderID: "h-1", HolderName: "Stu", IssuedAt: time.Now().UTC()})
	require.NoError(t, err)

	png, err := QRPNG(encoded)
	require.NoError(t, err)
	// PNG magic header.
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
