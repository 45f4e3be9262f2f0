// Package credstore keeps the bridge credentials in the operating system secret store.
//
// Blobs are JSON encoded and then base64 encoded before being written. The encoding is
// reversible and only exists to keep the keyring entry a single printable string,
// confidentiality comes from the platform keyring itself.
package credstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"k8s.io/klog"
)

const (
	configUser   = "config"
	authCodeUser = "auth_code"
)

// Keyring is the subset of an OS secret store used by the Store.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, secret string) error  { return keyring.Set(service, user, secret) }
func (osKeyring) Delete(service, user string) error       { return keyring.Delete(service, user) }

// OSKeyring returns the platform keyring (secret service, keychain or wincred).
func OSKeyring() Keyring {
	return osKeyring{}
}

type Store struct {
	keyring       Keyring
	monetrService string
	monzoService  string
}

func New(k Keyring, monetrService, monzoService string) *Store {
	return &Store{
		keyring:       k,
		monetrService: monetrService,
		monzoService:  monzoService,
	}
}

// Save serializes v and stores it under service.
func (s *Store) Save(service string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s config: %w", service, err)
	}

	err = s.keyring.Set(service, configUser, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return fmt.Errorf("failed to write %s config to keyring: %w", service, err)
	}
	return nil
}

// Load decodes the blob stored under service into v. It returns false when nothing is
// stored or the stored value can't be decoded, so callers can fall back to setup.
func (s *Store) Load(service string, v interface{}) bool {
	encoded, err := s.keyring.Get(service, configUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			klog.Warningf("Failed to read %s config from keyring: %v", service, err)
		}
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		klog.V(2).Infof("Ignoring undecodable %s config: %v", service, err)
		return false
	}

	if err := json.Unmarshal(raw, v); err != nil {
		klog.V(2).Infof("Ignoring corrupt %s config: %v", service, err)
		return false
	}

	return true
}

func (s *Store) LoadMonetr() (*MonetrCredentials, bool) {
	creds := &MonetrCredentials{}
	if !s.Load(s.monetrService, creds) {
		return nil, false
	}
	return creds, true
}

func (s *Store) SaveMonetr(creds *MonetrCredentials) error {
	return s.Save(s.monetrService, creds)
}

func (s *Store) LoadMonzo() (*MonzoCredentials, bool) {
	creds := &MonzoCredentials{}
	if !s.Load(s.monzoService, creds) {
		return nil, false
	}
	return creds, true
}

func (s *Store) SaveMonzo(creds *MonzoCredentials) error {
	return s.Save(s.monzoService, creds)
}

func (s *Store) SaveAuthCode(code string) error {
	if err := s.keyring.Set(s.monzoService, authCodeUser, code); err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	return nil
}

// AuthCode returns the stored authorization code, or "" when there is none.
func (s *Store) AuthCode() (string, error) {
	code, err := s.keyring.Get(s.monzoService, authCodeUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	return code, nil
}

// DeleteAuthCode removes the stored authorization code. Deleting a missing code is not an error.
func (s *Store) DeleteAuthCode() error {
	err := s.keyring.Delete(s.monzoService, authCodeUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}
