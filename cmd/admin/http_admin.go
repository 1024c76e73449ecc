package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	exitWith(do(cl, http.MethodGet, endpoint(*baseURL, "/admin/v1/state"), nil))
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 10 * time.Second}
	exitWith(do(cl, http.MethodPost, endpoint(*baseURL, "/admin/v1/snapshot"), nil))
}

func spawnerCmd(args []string) {
	fs := flag.NewFlagSet("spawner", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	active := fs.Bool("active", true, "activate (true) or deactivate (false)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin spawner [-active=false] <spawner id>")
		os.Exit(2)
	}
	body, _ := json.Marshal(map[string]bool{"active": *active})
	u := endpoint(*baseURL, "/api/spawners/"+url.PathEscape(fs.Arg(0))+"/active")
	cl := &http.Client{Timeout: 5 * time.Second}
	exitWith(do(cl, http.MethodPost, u, body))
}

func endpoint(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

// do sends one request and returns the response body. Non-2xx statuses come
// back as an error along with the body.
func do(cl *http.Client, method, u string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s %s: %s", method, u, resp.Status)
	}
	return b, nil
}

func exitWith(b []byte, err error) {
	if len(b) > 0 {
		fmt.Println(strings.TrimSpace(string(b)))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
}
