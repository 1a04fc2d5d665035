package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAllTypes(t *testing.T) {
	var fixtures = []Packet{
		Book{ClientID: 1, PacketID: 2, Title: "A", Author: "X"},
		Review{ClientID: 1, PacketID: 3, Title: "A", Score: 5, Text: "great"},
		EnrichedReview{ClientID: 1, PacketID: 3, Title: "A", Score: 5, Text: "great", Author: "X"},
		EOF{ClientID: 1, PacketID: 4, AckInstances: []uint32{0, 1}},
		EOF{ClientID: 5, PacketID: 6},
	}

	for _, fixture := range fixtures {
		var decoded, err = Decode(Encode(fixture))
		require.NoError(t, err)
		require.Equal(t, fixture, decoded)
	}
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	var _, err = Decode([]byte{byte(TypeBook)})
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	var body = appendHeader(nil, Type(99), 1, 1)
	var _, err = Decode(body)
	require.Error(t, err)
}

func TestEOFStampIsIdempotent(t *testing.T) {
	var e = EOF{ClientID: 1, PacketID: 1}
	e = e.WithStamp(0)
	e = e.WithStamp(0)
	require.Equal(t, []uint32{0}, e.AckInstances)
	require.True(t, e.Stamped(0))
	require.False(t, e.Complete(2))

	e = e.WithStamp(1)
	require.True(t, e.Complete(2))
}
