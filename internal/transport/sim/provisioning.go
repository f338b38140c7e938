package sim

import (
	"bytes"
	"crypto/aes"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// received holds the credentials captured in the provisioning window.
type received struct {
	at        time.Time
	profile   Profile
	encrypted bool
	cipher    []byte
	stored    bool
}

// CreateNVMemEntry allocates a file in non-volatile memory.
func (c *Chip) CreateNVMemEntry(fileID uint8, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpCreateNVMemEntry); err != nil {
		return err
	}
	if size <= 0 {
		return callErr(transport.OpCreateNVMemEntry, "invalid size %d", size)
	}
	c.nvmem[fileID] = size
	return nil
}

// WriteAESKey stores the provisioning key. The key file must exist.
func (c *Chip) WriteAESKey(key [transport.AESKeySize]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpWriteAESKey); err != nil {
		return err
	}
	if c.nvmem[transport.NVMemAESKeyFileID] != transport.AESKeySize {
		return callErr(transport.OpWriteAESKey, "no key file")
	}
	if err := c.store.SaveAESKey(key[:]); err != nil {
		return callErr(transport.OpWriteAESKey, "%v", err)
	}
	return nil
}

// SetProvisioningPrefix sets the SSID prefix the phone app must use.
func (c *Chip) SetProvisioningPrefix(prefix [3]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSetPrefix); err != nil {
		return err
	}
	c.prefix = prefix
	return nil
}

// StartProvisioning opens the listen window. If a Provisioner is configured
// its credentials arrive after Provisioner.Delay.
func (c *Chip) StartProvisioning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpStartProvisioning); err != nil {
		return err
	}
	if !c.started {
		return callErr(transport.OpStartProvisioning, "radio is stopped")
	}
	if string(c.prefix[:]) != "TTT" {
		return callErr(transport.OpStartProvisioning, "prefix %q rejected", c.prefix[:])
	}
	c.listening = true

	p := c.opts.Provisioner
	if p == nil {
		return nil
	}
	r := &received{
		at: c.now().Add(p.Delay),
		profile: Profile{
			SSID:     p.Network.SSID,
			Key:      p.Network.Key,
			Security: p.Network.Security,
		},
	}
	if p.AESKey != "" {
		cipher, err := encryptKey([]byte(p.AESKey), p.Network.Key)
		if err != nil {
			return callErr(transport.OpStartProvisioning, "%v", err)
		}
		r.encrypted = true
		r.cipher = cipher
		r.profile.Key = ""
	}
	c.received = r
	c.emit(r.at, transport.Event{Kind: transport.EventProvisioningDone})
	return nil
}

// ProcessProvisioning decrypts the received key with the stored AES key and
// writes the profile. Plaintext credentials need no processing.
func (c *Chip) ProcessProvisioning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpProcessProvision); err != nil {
		return err
	}
	r := c.received
	if r == nil || c.now().Before(r.at) {
		return callErr(transport.OpProcessProvision, "no provisioning data")
	}
	if !r.encrypted || r.stored {
		return nil
	}
	key, err := c.store.AESKey()
	if err != nil || len(key) != transport.AESKeySize {
		return callErr(transport.OpProcessProvision, "no AES key stored")
	}
	plain, err := decryptKey(key, r.cipher)
	if err != nil {
		return callErr(transport.OpProcessProvision, "%v", err)
	}
	r.profile.Key = plain
	if err := c.addProfile(r.profile); err != nil {
		return callErr(transport.OpProcessProvision, "%v", err)
	}
	r.stored = true
	return nil
}

// encryptKey encrypts the zero-padded network key block by block, the way
// the phone app sends it.
func encryptKey(aesKey []byte, key string) ([]byte, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, transport.MaxKeyLen)
	copy(buf, key)
	for i := 0; i < len(buf); i += aes.BlockSize {
		block.Encrypt(buf[i:i+aes.BlockSize], buf[i:i+aes.BlockSize])
	}
	return buf, nil
}

func decryptKey(aesKey, cipher []byte) (string, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", err
	}
	buf := append([]byte(nil), cipher...)
	for i := 0; i+aes.BlockSize <= len(buf); i += aes.BlockSize {
		block.Decrypt(buf[i:i+aes.BlockSize], buf[i:i+aes.BlockSize])
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}
