package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiError mirrors the server's error body.
type apiError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type profile struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// client talks to the admin REST API.
type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string) *client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &client{base: strings.TrimRight(base, "/"), token: token, hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		e := &apiError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(e)
		return e
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type tokenResp struct {
	AccessToken string `json:"accessToken"`
}

type messageResp struct {
	Message string `json:"message"`
}

func (c *client) Signup(ctx context.Context, email, password string, p profile) (string, error) {
	in := map[string]string{
		"email":       email,
		"password":    password,
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"phoneNumber": p.PhoneNumber,
	}
	var out tokenResp
	err := c.do(ctx, http.MethodPost, "/v1/admin/signup", in, &out)
	return out.AccessToken, err
}

func (c *client) Login(ctx context.Context, email, password string) (string, error) {
	var out tokenResp
	err := c.do(ctx, http.MethodPost, "/v1/admin/login", map[string]string{"email": email, "password": password}, &out)
	return out.AccessToken, err
}

func (c *client) Profile(ctx context.Context) (profile, error) {
	var out profile
	err := c.do(ctx, http.MethodGet, "/v1/admin/profile", nil, &out)
	return out, err
}

// UpdateProfile sends only the keys present in changes.
func (c *client) UpdateProfile(ctx context.Context, changes map[string]string) (profile, error) {
	var out profile
	err := c.do(ctx, http.MethodPatch, "/v1/admin/profile", changes, &out)
	return out, err
}

func (c *client) RequestReset(ctx context.Context, email string) (string, error) {
	var out messageResp
	err := c.do(ctx, http.MethodPost, "/v1/admin/password/reset-link", map[string]string{"email": email}, &out)
	return out.Message, err
}

func (c *client) VerifyCode(ctx context.Context, code string) (string, error) {
	var out messageResp
	err := c.do(ctx, http.MethodPost, "/v1/admin/password/verify-code", map[string]string{"code": code}, &out)
	return out.Message, err
}

func (c *client) ResetPassword(ctx context.Context, code, password string) (string, error) {
	var out messageResp
	err := c.do(ctx, http.MethodPost, "/v1/admin/password/reset", map[string]string{"code": code, "password": password}, &out)
	return out.Message, err
}
