package vpncertd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

type IssueRequest struct {
	CN         string `json:"cn"`
	Profile    string `json:"profile"`
	KeyType    string `json:"key_type"`
	Passphrase string `json:"passphrase"`
}

type IssueReply struct {
	CertPEM         string `json:"cert_pem"`
	KeyPEMEncrypted string `json:"key_pem_encrypted"`
	Serial          string `json:"serial,omitempty"`
	NotAfter        string `json:"not_after,omitempty"`
}

type IssuedMeta struct {
	Serial   string `json:"serial"`
	CN       string `json:"cn"`
	Profile  string `json:"profile"`
	NotAfter string `json:"not_after"`
	SHA256   string `json:"sha256,omitempty"`
}

type BundleSpec struct {
	CN         string `json:"cn"`
	IncludeKey bool   `json:"include_key"`
	RemoteHost string `json:"remote_host"`
	RemotePort int    `json:"remote_port"`
	Proto      string `json:"proto"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "HEALTH", map[string]string{"op": "HEALTH"}, nil)
}

func (c *Client) GenKeyAndSign(ctx context.Context, req IssueRequest) (*IssueReply, error) {
	wire := struct {
		Op string `json:"op"`
		IssueRequest
	}{Op: "GENKEY_AND_SIGN", IssueRequest: req}

	var reply IssueReply
	if err := c.call(ctx, wire.Op, wire, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) Revoke(ctx context.Context, serial, reason string) error {
	wire := map[string]string{"op": "REVOKE", "serial": serial, "reason": reason}
	return c.call(ctx, "REVOKE", wire, nil)
}

func (c *Client) ListIssued(ctx context.Context) ([]IssuedMeta, error) {
	var reply struct {
		Issued []IssuedMeta `json:"issued"`
	}
	if err := c.call(ctx, "LIST_ISSUED", map[string]string{"op": "LIST_ISSUED"}, &reply); err != nil {
		return nil, err
	}
	return reply.Issued, nil
}

// BuildBundle returns the raw zip archive for spec.
func (c *Client) BuildBundle(ctx context.Context, spec BundleSpec) ([]byte, error) {
	wire := struct {
		Op     string     `json:"op"`
		Bundle BundleSpec `json:"bundle"`
	}{Op: "BUILD_BUNDLE", Bundle: spec}

	var reply struct {
		ZipB64 *string `json:"zip_b64"`
	}
	if err := c.call(ctx, wire.Op, wire, &reply); err != nil {
		return nil, err
	}
	if reply.ZipB64 == nil {
		return nil, errors.New("vpncertd BUILD_BUNDLE: missing zip_b64")
	}
	zip, err := base64.StdEncoding.DecodeString(*reply.ZipB64)
	if err != nil {
		return nil, fmt.Errorf("vpncertd BUILD_BUNDLE: %w", err)
	}
	return zip, nil
}
