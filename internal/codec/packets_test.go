package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRoundTrip(t *testing.T) {
	p := &Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: 4,
		CleanSession:  true,
		KeepAlive:     60,
		ClientID:      "client1",
		WillFlag:      true,
		WillTopic:     "dead",
		WillMessage:   []byte("bye"),
		WillQoS:       QoS1,
		UsernameFlag:  true,
		Username:      "alice",
		PasswordFlag:  true,
		Password:      []byte("secret"),
	}

	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, p, decoded)
}

func TestConnectRejectsWrongProtocolName(t *testing.T) {
	p := &Connect{ProtocolLevel: 4, ClientID: "c"}
	encoded, err := p.Encode()
	require.NoError(t, err)
	// Encode always writes "MQTT" (bytes 4..7); overwrite it with another name.
	copy(encoded[4:8], "MQIs")

	_, _, err = Decode(encoded)
	require.ErrorIs(t, err, ErrInvalidProtocolName)
}

func TestPublishQoS0HasNoPacketID(t *testing.T) {
	p := &Publish{QoS: QoS0, Topic: "room/1", Payload: []byte("hi")}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, _, err := Decode(encoded)
	require.NoError(t, err)
	pub := decoded.(*Publish)
	assert.Equal(t, uint16(0), pub.PacketID)
	assert.Equal(t, "room/1", pub.Topic)
	assert.Equal(t, []byte("hi"), pub.Payload)
}

func TestPublishQoS1RoundTrip(t *testing.T) {
	p := &Publish{QoS: QoS1, DUP: true, Retain: true, Topic: "t", PacketID: 7, Payload: []byte("x")}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, p, decoded)
}

func TestPublishInvalidQoSInFixedHeader(t *testing.T) {
	// QoS bits == 3 (both set) is invalid per spec.md §4.1.
	data := []byte{byte(PUBLISH)<<4 | 0x06, 0x00}
	_, _, err := Decode(data)
	require.ErrorIs(t, err, ErrInvalidQoS)
}

func TestAckPacketsRoundTrip(t *testing.T) {
	cases := []Packet{
		&Puback{PacketID: 1},
		&Pubrec{PacketID: 2},
		&Pubrel{PacketID: 3},
		&Pubcomp{PacketID: 4},
		&Unsuback{PacketID: 5},
	}

	for _, p := range cases {
		encoded, err := p.(interface{ Encode() ([]byte, error) }).Encode()
		require.NoError(t, err)

		decoded, n, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, len(encoded), n)
		assert.Equal(t, p, decoded)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	p := &Subscribe{
		PacketID: 42,
		Subscriptions: []TopicSubscription{
			{Filter: "sport/tennis/player1/#", QoS: QoS2},
			{Filter: "room/+", QoS: QoS0},
		},
	}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, p, decoded)
}

func TestSubscribeRejectsReservedQoSBits(t *testing.T) {
	data := []byte{
		byte(SUBSCRIBE)<<4 | 0x02, 0x06,
		0x00, 0x01, // packet id
		0x00, 0x01, 'a',  // filter "a"
		0x04, // QoS byte with disallowed upper bits set
	}
	_, _, err := Decode(data)
	require.ErrorIs(t, err, ErrInvalidQoS)
}

func TestSubackRoundTrip(t *testing.T) {
	p := &Suback{PacketID: 9, ReturnCodes: []byte{0x00, 0x01, 0x02, SubackFailure}}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, p, decoded)
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	p := &Unsubscribe{PacketID: 1, TopicFilters: []string{"a/b", "c/d/#"}}
	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, p, decoded)
}

func TestNoVariablePartPackets(t *testing.T) {
	cases := []Packet{&Pingreq{}, &Pingresp{}, &Disconnect{}}
	for _, p := range cases {
		encoded, err := p.(interface{ Encode() ([]byte, error) }).Encode()
		require.NoError(t, err)
		assert.Len(t, encoded, 2)

		decoded, n, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, len(encoded), n)
		assert.Equal(t, p, decoded)
	}
}

func TestDecodeNeedsMoreDataOnPartialInput(t *testing.T) {
	p := &Publish{QoS: QoS1, Topic: "t", PacketID: 1, Payload: []byte("payload")}
	full, err := p.Encode()
	require.NoError(t, err)

	for i := 1; i < len(full); i++ {
		_, _, err := Decode(full[:i])
		require.ErrorIs(t, err, ErrNeedMoreData, "prefix length %d", i)
	}
}

func TestConnackReturnCodes(t *testing.T) {
	for code := ConnectAccepted; code <= ConnectNotAuthorized; code++ {
		p := &Connack{SessionPresent: code == ConnectAccepted, ReturnCode: code}
		encoded, err := p.Encode()
		require.NoError(t, err)

		decoded, _, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestDecodeRejectsInvalidConnackReturnCode(t *testing.T) {
	data := []byte{byte(CONNACK) << 4, 0x02, 0x00, 0x06}
	_, _, err := Decode(data)
	require.ErrorIs(t, err, ErrInvalidReturnCode)
}

func TestReservedPacketType0IsInvalid(t *testing.T) {
	_, _, err := Decode([]byte{0x00, 0x00})
	require.ErrorIs(t, err, ErrInvalidReservedType)
}

func TestInvalidFlagsOnFixedType(t *testing.T) {
	// PUBACK must carry flags 0x00.
	_, _, err := Decode([]byte{byte(PUBACK)<<4 | 0x01, 0x02, 0x00, 0x01})
	require.ErrorIs(t, err, ErrInvalidFlags)
}
