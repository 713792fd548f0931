package morse

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// CI-V framing bytes and the default bus addresses.
const (
	CIV_PREAMBLE  = 0xFE
	CIV_END       = 0xFD
	CIV_ADDR_7300 = 0x94 // IC-7300 factory default
	CIV_ADDR_PC   = 0xE0
)

// CI-V command bytes used by this client.
const (
	CIV_CMD_READ_FREQ = 0x03
	CIV_CMD_READ_MODE = 0x04
	CIV_CMD_SEND_CW   = 0x17
)

// sendTextChunk is the rig's keyer message limit per CI-V frame.
const sendTextChunk = 30

// SerialPort abstracts the serial connection so tests can substitute a mock.
type SerialPort interface {
	io.ReadWriteCloser
}

// CIVClient drives an ICOM transceiver over the CI-V serial bus. It can
// read the dial frequency and operating mode and key CW text through
// the rig's internal keyer.
type CIVClient struct {
	Port     string
	BaudRate int
	RigAddr  byte

	conn SerialPort
}

func NewCIVClient(port string, baudRate int) *CIVClient {
	return &CIVClient{
		Port:     port,
		BaudRate: baudRate,
		RigAddr:  CIV_ADDR_7300,
	}
}

// Open connects to the serial port. Reads time out after 500ms so a
// silent bus cannot hang the caller.
func (c *CIVClient) Open() error {
	config := &serial.Config{
		Name:        c.Port,
		Baud:        c.BaudRate,
		ReadTimeout: 500 * time.Millisecond,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", c.Port, err)
	}
	c.conn = s
	return nil
}

func (c *CIVClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendCommand writes one CI-V frame: FE FE [rig] [pc] [cmd] [sub...] FD.
func (c *CIVClient) SendCommand(cmd byte, subCmd []byte) error {
	if c.conn == nil {
		return fmt.Errorf("serial connection not open")
	}
	frame := []byte{CIV_PREAMBLE, CIV_PREAMBLE, c.RigAddr, CIV_ADDR_PC, cmd}
	frame = append(frame, subCmd...)
	frame = append(frame, CIV_END)
	_, err := c.conn.Write(frame)
	return err
}

// SendText keys text through the rig's CW message command. The rig
// accepts at most 30 characters per frame, so longer messages are sent
// in chunks; the rig queues them back to back.
func (c *CIVClient) SendText(text string) error {
	text = strings.ToUpper(strings.TrimSpace(text))
	for len(text) > 0 {
		n := len(text)
		if n > sendTextChunk {
			n = sendTextChunk
		}
		if err := c.SendCommand(CIV_CMD_SEND_CW, []byte(text[:n])); err != nil {
			return err
		}
		text = text[n:]
	}
	return nil
}

// ReadFrequency returns the dial frequency in Hz. The rig answers with
// five BCD bytes, least significant pair first.
func (c *CIVClient) ReadFrequency() (int, error) {
	if err := c.SendCommand(CIV_CMD_READ_FREQ, nil); err != nil {
		return 0, err
	}
	resp, err := c.readResponse(CIV_CMD_READ_FREQ)
	if err != nil {
		return 0, err
	}
	if len(resp) < 5 {
		return 0, fmt.Errorf("short frequency response: %d bytes", len(resp))
	}
	freq := 0
	multiplier := 1
	for i := 0; i < 5; i++ {
		freq += bcdToDecimal(resp[i]) * multiplier
		multiplier *= 100
	}
	return freq, nil
}

var civModes = map[byte]string{
	0x00: "LSB", 0x01: "USB", 0x02: "AM", 0x03: "CW",
	0x04: "RTTY", 0x05: "FM", 0x07: "CW-R", 0x08: "RTTY-R",
	0x17: "DV",
}

// ReadMode returns the rig's operating mode name, e.g. "CW" or "USB".
func (c *CIVClient) ReadMode() (string, error) {
	if err := c.SendCommand(CIV_CMD_READ_MODE, nil); err != nil {
		return "", err
	}
	resp, err := c.readResponse(CIV_CMD_READ_MODE)
	if err != nil {
		return "", err
	}
	if len(resp) < 1 {
		return "", fmt.Errorf("empty mode response")
	}
	if name, ok := civModes[resp[0]]; ok {
		return name, nil
	}
	return fmt.Sprintf("Unknown(0x%02X)", resp[0]), nil
}

// readResponse reads until a frame addressed to the controller with the
// expected command arrives and returns its data bytes. On a shared bus
// our own transmission echoes back first, so anything before the
// response header is skipped.
func (c *CIVClient) readResponse(expectedCmd byte) ([]byte, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("serial connection not open")
	}
	header := []byte{CIV_PREAMBLE, CIV_PREAMBLE, CIV_ADDR_PC, c.RigAddr, expectedCmd}
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for attempt := 0; attempt < 4; attempt++ {
		n, err := c.conn.Read(chunk)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("serial read: %w", err)
		}
		buf = append(buf, chunk[:n]...)
		if idx := bytes.Index(buf, header); idx >= 0 {
			frame := buf[idx+len(header):]
			if end := bytes.IndexByte(frame, CIV_END); end >= 0 {
				return frame[:end], nil
			}
		}
		if err == io.EOF && n == 0 {
			break
		}
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("no response from rig")
	}
	return nil, fmt.Errorf("response not found in %s", hex.EncodeToString(buf))
}

func bcdToDecimal(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}
