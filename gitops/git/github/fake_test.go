package github_test

import (
	"crypto/sha1" //nolint:gosec // git object ids
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/gitops_pr/gitops/digester"
	ghprov "github.com/byte4ever/gitops_pr/gitops/git/github"
)

const (
	owner = "org"
	repo  = "repo"
)

type fakeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type fakeIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date,omitempty"`
}

type fakeCommit struct {
	Message   string       `json:"message"`
	Tree      string       `json:"tree"`
	Parents   []string     `json:"parents"`
	Author    fakeIdentity `json:"author"`
	Committer fakeIdentity `json:"committer"`
	Signature string       `json:"signature"`
}

type fakePR struct {
	Number int
	Head   string
	Base   string
	Title  string
	Body   string
	Open   bool
}

// fakeGitHub serves the parts of the GitHub REST API the
// store and provider use, over in-memory objects.
type fakeGitHub struct {
	*httptest.Server

	mu      sync.Mutex
	blobs   map[string][]byte
	trees   map[string][]fakeEntry
	commits map[string]fakeCommit
	refs    map[string]string
	prs     []*fakePR
	calls   map[string]int
	// fail maps "METHOD path-prefix" to a status code.
	fail map[string]int
}

func newFakeGitHub(tb testing.TB) *fakeGitHub {
	tb.Helper()

	f := &fakeGitHub{
		blobs:   make(map[string][]byte),
		trees:   make(map[string][]fakeEntry),
		commits: make(map[string]fakeCommit),
		refs:    make(map[string]string),
		calls:   make(map[string]int),
		fail:    make(map[string]int),
	}

	root := "/repos/" + owner + "/" + repo
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+root+"/git/blobs", f.createBlob)
	mux.HandleFunc("GET "+root+"/git/trees/{sha}", f.getTree)
	mux.HandleFunc("POST "+root+"/git/trees", f.createTree)
	mux.HandleFunc("GET "+root+"/git/commits/{sha}", f.getCommit)
	mux.HandleFunc("POST "+root+"/git/commits", f.createCommit)
	mux.HandleFunc("GET "+root+"/git/ref/heads/{branch...}", f.getRef)
	mux.HandleFunc("POST "+root+"/git/refs", f.createRef)
	mux.HandleFunc("PATCH "+root+"/git/refs/heads/{branch...}", f.updateRef)
	mux.HandleFunc("POST "+root+"/pulls", f.createPR)
	mux.HandleFunc("GET "+root+"/pulls", f.listPRs)
	mux.HandleFunc("PATCH "+root+"/pulls/{number}", f.editPR)

	f.Server = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.calls[r.Method+" "+route(r.URL.Path)]++

			for key, code := range f.fail {
				if strings.HasPrefix(r.Method+" "+r.URL.Path, key) {
					f.mu.Unlock()
					writeError(w, code, "injected failure")

					return
				}
			}

			f.mu.Unlock()
			mux.ServeHTTP(w, r)
		},
	))
	tb.Cleanup(f.Close)

	return f
}

func (f *fakeGitHub) config() ghprov.Config {
	return ghprov.Config{
		RepoOwner:   owner,
		Repo:        repo,
		AccessToken: "tok",
		BaseURL:     f.URL,
	}
}

func (f *fakeGitHub) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[key]
}

func (f *fakeGitHub) failOn(key string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail[key] = code
}

func (f *fakeGitHub) setRef(branch, sha string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs[branch] = sha
}

func (f *fakeGitHub) ref(branch string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.refs[branch]
}

func (f *fakeGitHub) commit(sha string) fakeCommit {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.commits[sha]
}

func (f *fakeGitHub) createBlob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}

	if !decode(w, r, &req) {
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil || req.Encoding != "base64" {
		writeError(w, http.StatusBadRequest, "bad content")

		return
	}

	sha := digester.BlobID(content)

	f.mu.Lock()
	f.blobs[sha] = content
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"sha": sha})
}

func (f *fakeGitHub) getTree(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	entries, ok := f.trees[r.PathValue("sha")]
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sha":       r.PathValue("sha"),
		"tree":      entries,
		"truncated": false,
	})
}

func (f *fakeGitHub) createTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseTree string      `json:"base_tree"`
		Tree     []fakeEntry `json:"tree"`
	}

	if !decode(w, r, &req) {
		return
	}

	if req.BaseTree != "" || len(req.Tree) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "bad tree")

		return
	}

	sort.Slice(req.Tree, func(i, j int) bool {
		return req.Tree[i].Path < req.Tree[j].Path
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ent := range req.Tree {
		if ent.Type == "blob" && f.blobs[ent.SHA] == nil {
			writeError(w, http.StatusUnprocessableEntity, "unknown blob")

			return
		}
	}

	sha := objectID("tree", req.Tree)
	f.trees[sha] = req.Tree

	writeJSON(w, http.StatusCreated, map[string]any{
		"sha": sha, "tree": req.Tree,
	})
}

func (f *fakeGitHub) getCommit(w http.ResponseWriter, r *http.Request) {
	sha := r.PathValue("sha")

	f.mu.Lock()
	c, ok := f.commits[sha]
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sha":     sha,
		"message": c.Message,
		"tree":    map[string]any{"sha": c.Tree},
	})
}

func (f *fakeGitHub) createCommit(w http.ResponseWriter, r *http.Request) {
	var req fakeCommit

	if !decode(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	_, known := f.trees[req.Tree]
	if !known && req.Tree != ghprov.EmptyTreeID {
		writeError(w, http.StatusUnprocessableEntity, "unknown tree")

		return
	}

	sha := objectID("commit", req)
	f.commits[sha] = req

	writeJSON(w, http.StatusCreated, map[string]any{"sha": sha})
}

func (f *fakeGitHub) getRef(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	f.mu.Lock()
	sha, ok := f.refs[branch]
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")

		return
	}

	writeJSON(w, http.StatusOK, refBody(branch, sha))
}

func (f *fakeGitHub) createRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}

	if !decode(w, r, &req) {
		return
	}

	branch := strings.TrimPrefix(req.Ref, "refs/heads/")

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.refs[branch]; ok {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")

		return
	}

	f.refs[branch] = req.SHA

	writeJSON(w, http.StatusCreated, refBody(branch, req.SHA))
}

func (f *fakeGitHub) updateRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}

	if !decode(w, r, &req) {
		return
	}

	branch := r.PathValue("branch")

	f.mu.Lock()
	defer f.mu.Unlock()

	cur, ok := f.refs[branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")

		return
	}

	if !req.Force && !f.isAncestor(cur, req.SHA) {
		writeError(
			w, http.StatusUnprocessableEntity,
			"Update is not a fast forward",
		)

		return
	}

	f.refs[branch] = req.SHA

	writeJSON(w, http.StatusOK, refBody(branch, req.SHA))
}

// isAncestor walks first parents from desc. Caller holds
// the lock.
func (f *fakeGitHub) isAncestor(anc, desc string) bool {
	for cur := desc; cur != ""; {
		if cur == anc {
			return true
		}

		c := f.commits[cur]
		if len(c.Parents) == 0 {
			return false
		}

		cur = c.Parents[0]
	}

	return false
}

func (f *fakeGitHub) createPR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
		Body  string `json:"body"`
	}

	if !decode(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pr := range f.prs {
		if pr.Open && pr.Head == req.Head && pr.Base == req.Base {
			writeError(
				w, http.StatusUnprocessableEntity,
				"Validation Failed",
			)

			return
		}
	}

	pr := &fakePR{
		Number: len(f.prs) + 1,
		Head:   req.Head,
		Base:   req.Base,
		Title:  req.Title,
		Body:   req.Body,
		Open:   true,
	}
	f.prs = append(f.prs, pr)

	writeJSON(w, http.StatusCreated, prBody(f.URL, pr))
}

func (f *fakeGitHub) listPRs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	head := strings.TrimPrefix(q.Get("head"), owner+":")

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []map[string]any{}

	for _, pr := range f.prs {
		if pr.Open == (q.Get("state") == "open") &&
			pr.Head == head && pr.Base == q.Get("base") {
			out = append(out, prBody(f.URL, pr))
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (f *fakeGitHub) editPR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}

	if !decode(w, r, &req) {
		return
	}

	num, _ := strconv.Atoi(r.PathValue("number"))

	f.mu.Lock()
	defer f.mu.Unlock()

	if num < 1 || num > len(f.prs) {
		writeError(w, http.StatusNotFound, "Not Found")

		return
	}

	pr := f.prs[num-1]
	pr.Title, pr.Body = req.Title, req.Body

	writeJSON(w, http.StatusOK, prBody(f.URL, pr))
}

func (f *fakeGitHub) pr(num int) fakePR {
	f.mu.Lock()
	defer f.mu.Unlock()

	return *f.prs[num-1]
}

func refBody(branch, sha string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"type": "commit", "sha": sha},
	}
}

func prBody(base string, pr *fakePR) map[string]any {
	return map[string]any{
		"number":   pr.Number,
		"title":    pr.Title,
		"body":     pr.Body,
		"html_url": fmt.Sprintf("%s/%s/%s/pull/%d", base, owner, repo, pr.Number),
	}
}

// route collapses ids in path so calls can be counted
// per endpoint.
func route(path string) string {
	for _, p := range []string{"/git/trees/", "/git/commits/"} {
		if i := strings.Index(path, p); i >= 0 && len(path) > i+len(p) {
			return path[:i+len(p)] + "*"
		}
	}

	return path
}

func objectID(kind string, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	//nolint:gosec // git object ids
	return fmt.Sprintf("%x", sha1.Sum(append([]byte(kind+"\x00"), data...)))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"message": msg})
}
