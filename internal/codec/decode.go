package codec

// Decode reads one complete control packet from the front of data. It
// returns the packet, the number of bytes consumed (fixed header +
// variable header + payload), and an error. ErrNeedMoreData means data
// does not yet hold a complete packet; the caller must not advance its
// buffer and should retry once more bytes arrive. Any other error is a
// MalformedPacket per spec.md §7.
func Decode(data []byte) (Packet, int, error) {
	fh, headerLen, err := DecodeFixedHeader(data)
	if err != nil {
		return nil, 0, err
	}

	total := headerLen + int(fh.RemainingLength)
	if len(data) < total {
		return nil, 0, ErrNeedMoreData
	}
	body := data[headerLen:total]

	pkt, err := decodeBody(*fh, body)
	if err != nil {
		return nil, 0, err
	}
	return pkt, total, nil
}

func decodeBody(fh FixedHeader, body []byte) (Packet, error) {
	switch fh.Type {
	case CONNECT:
		return decodeConnect(body)
	case CONNACK:
		return decodeConnack(body)
	case PUBLISH:
		return decodePublish(fh, body)
	case PUBACK:
		id, _, err := readUint16(body)
		return &Puback{PacketID: id}, err
	case PUBREC:
		id, _, err := readUint16(body)
		return &Pubrec{PacketID: id}, err
	case PUBREL:
		id, _, err := readUint16(body)
		return &Pubrel{PacketID: id}, err
	case PUBCOMP:
		id, _, err := readUint16(body)
		return &Pubcomp{PacketID: id}, err
	case SUBSCRIBE:
		return decodeSubscribe(body)
	case SUBACK:
		return decodeSuback(body)
	case UNSUBSCRIBE:
		return decodeUnsubscribe(body)
	case UNSUBACK:
		id, _, err := readUint16(body)
		return &Unsuback{PacketID: id}, err
	case PINGREQ:
		return &Pingreq{}, nil
	case PINGRESP:
		return &Pingresp{}, nil
	case DISCONNECT:
		return &Disconnect{}, nil
	default:
		return nil, ErrInvalidType
	}
}

func decodeConnect(body []byte) (*Connect, error) {
	name, n, err := readUTF8String(body)
	if err != nil {
		return nil, err
	}
	body = body[n:]
	if name != "MQTT" {
		return nil, ErrInvalidProtocolName
	}

	if len(body) < 1 {
		return nil, ErrMalformedRemainingLength
	}
	level := body[0]
	body = body[1:]
	if level != 4 {
		return nil, ErrInvalidProtocolLevel
	}

	if len(body) < 3 {
		return nil, ErrMalformedRemainingLength
	}
	flags := body[0]
	keepAlive, _, err := readUint16(body[1:3])
	if err != nil {
		return nil, err
	}
	body = body[3:]

	p := &Connect{
		ProtocolName:  name,
		ProtocolLevel: level,
		CleanSession:  flags&connectFlagCleanSess != 0,
		KeepAlive:     keepAlive,
		WillFlag:      flags&connectFlagWillFlag != 0,
		WillRetain:    flags&connectFlagWillRetain != 0,
		WillQoS:       QoS((flags >> 3) & 0x03),
		UsernameFlag:  flags&connectFlagUsername != 0,
		PasswordFlag:  flags&connectFlagPassword != 0,
	}
	if !p.WillQoS.IsValid() {
		return nil, ErrInvalidQoS
	}

	clientID, n, err := readUTF8String(body)
	if err != nil {
		return nil, err
	}
	p.ClientID = clientID
	body = body[n:]

	if p.WillFlag {
		topic, n, err := readUTF8String(body)
		if err != nil {
			return nil, err
		}
		p.WillTopic = topic
		body = body[n:]

		msg, n, err := readBinaryData(body)
		if err != nil {
			return nil, err
		}
		p.WillMessage = msg
		body = body[n:]
	}

	if p.UsernameFlag {
		u, n, err := readUTF8String(body)
		if err != nil {
			return nil, err
		}
		p.Username = u
		body = body[n:]
	}

	if p.PasswordFlag {
		pw, n, err := readBinaryData(body)
		if err != nil {
			return nil, err
		}
		p.Password = pw
		body = body[n:]
	}

	return p, nil
}

func decodeConnack(body []byte) (*Connack, error) {
	if len(body) < 2 {
		return nil, ErrMalformedRemainingLength
	}
	if body[1] > byte(ConnectNotAuthorized) {
		return nil, ErrInvalidReturnCode
	}
	return &Connack{
		SessionPresent: body[0]&0x01 != 0,
		ReturnCode:     ConnackReturnCode(body[1]),
	}, nil
}

func decodePublish(fh FixedHeader, body []byte) (*Publish, error) {
	topic, n, err := readUTF8String(body)
	if err != nil {
		return nil, err
	}
	body = body[n:]

	p := &Publish{DUP: fh.DUP, QoS: fh.QoS, Retain: fh.Retain, Topic: topic}

	if fh.QoS > QoS0 {
		id, n, err := readUint16(body)
		if err != nil {
			return nil, err
		}
		p.PacketID = id
		body = body[n:]
	}

	p.Payload = append([]byte(nil), body...)
	return p, nil
}

func decodeSubscribe(body []byte) (*Subscribe, error) {
	id, n, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	body = body[n:]

	p := &Subscribe{PacketID: id}
	for len(body) > 0 {
		filter, n, err := readUTF8String(body)
		if err != nil {
			return nil, err
		}
		body = body[n:]

		if len(body) < 1 {
			return nil, ErrMalformedRemainingLength
		}
		qosByte := body[0]
		body = body[1:]
		if qosByte&0xFC != 0 {
			return nil, ErrInvalidQoS
		}
		qos := QoS(qosByte)
		if !qos.IsValid() {
			return nil, ErrInvalidQoS
		}
		p.Subscriptions = append(p.Subscriptions, TopicSubscription{Filter: filter, QoS: qos})
	}
	if len(p.Subscriptions) == 0 {
		return nil, ErrMalformedRemainingLength
	}
	return p, nil
}

func decodeSuback(body []byte) (*Suback, error) {
	id, n, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	return &Suback{PacketID: id, ReturnCodes: append([]byte(nil), body[n:]...)}, nil
}

func decodeUnsubscribe(body []byte) (*Unsubscribe, error) {
	id, n, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	body = body[n:]

	p := &Unsubscribe{PacketID: id}
	for len(body) > 0 {
		filter, n, err := readUTF8String(body)
		if err != nil {
			return nil, err
		}
		body = body[n:]
		p.TopicFilters = append(p.TopicFilters, filter)
	}
	if len(p.TopicFilters) == 0 {
		return nil, ErrMalformedRemainingLength
	}
	return p, nil
}
