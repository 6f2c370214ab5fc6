package mockapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rexlx/drizzle/internal"
)

const (
	detailUserExists     = "REGISTER_USER_ALREADY_EXISTS"
	detailBadCredentials = "LOGIN_BAD_CREDENTIALS"
	detailPostNotFound   = "Post not found"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// writeMissing mimics FastAPI's validation error body.
func writeMissing(w http.ResponseWriter, field string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]fieldError{
		"detail": {{Loc: []string{"body", field}, Msg: "Field required", Type: "missing"}},
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     s.ID,
		"uptime": time.Since(s.StartTime).Round(time.Second).String(),
	})
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req internal.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeMissing(w, "email")
		return
	}
	if req.Password == "" {
		writeMissing(w, "password")
		return
	}

	user := User{
		ID:      uuid.NewString(),
		Email:   req.Email,
		Active:  true,
		Created: time.Now().UTC(),
	}
	if err := user.SetPassword(req.Password); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := s.DB.StoreUser(user); err != nil {
		if errors.Is(err, ErrExists) {
			writeDetail(w, http.StatusBadRequest, detailUserExists)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "failed to store user")
		return
	}

	s.Logger.Printf("registered %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, internal.User{ID: user.ID, Email: user.Email})
}

// LoginHandler takes OAuth2 password-flow form fields; username is the email.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("username")
	password := r.FormValue("password")
	if email == "" {
		writeMissing(w, "username")
		return
	}
	if password == "" {
		writeMissing(w, "password")
		return
	}

	user, err := s.DB.GetUserByEmail(email)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, detailBadCredentials)
		return
	}
	ok, err := user.PasswordMatches(password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal auth error")
		return
	}
	if !ok || !user.Active {
		writeDetail(w, http.StatusBadRequest, detailBadCredentials)
		return
	}

	token, err := GenerateJWT(user, s.Key, s.TokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, internal.AuthResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) FeedHandler(w http.ResponseWriter, r *http.Request) {
	stored, err := s.DB.ListPosts()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	posts := make([]internal.Post, 0, len(stored))
	for _, p := range stored {
		posts = append(posts, p.Post)
	}
	writeJSON(w, http.StatusOK, internal.FeedResponse{Posts: posts})
}

func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if err := s.parseMultipart(w, r); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	media, err := readMedia(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if media == nil {
		writeMissing(w, "file")
		return
	}

	id := uuid.NewString()
	post := StoredPost{
		Post: internal.Post{
			ID:        id,
			Caption:   r.FormValue("caption"),
			URL:       s.mediaURL(r, id),
			FileType:  media.fileType,
			FileName:  media.name,
			CreatedAt: internal.Timestamp{Time: time.Now().UTC()},
			UserID:    user.ID,
		},
		ContentType: media.contentType,
		Data:        media.data,
	}
	if err := s.DB.StorePost(post); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to store post")
		return
	}
	writeJSON(w, http.StatusOK, post.Post)
}

func (s *Server) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	post, ok := s.ownedPost(w, r, "update")
	if !ok {
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.MultipartForm != nil {
		if v, present := r.MultipartForm.Value["caption"]; present && len(v) > 0 {
			post.Caption = v[0]
		}
	}
	media, err := readMedia(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if media != nil {
		post.FileName = media.name
		post.FileType = media.fileType
		post.ContentType = media.contentType
		post.Data = media.data
	}

	if err := s.DB.StorePost(post); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to store post")
		return
	}
	writeJSON(w, http.StatusOK, post.Post)
}

func (s *Server) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	post, ok := s.ownedPost(w, r, "delete")
	if !ok {
		return
	}
	if err := s.DB.DeletePost(post.ID); err != nil {
		writeDetail(w, http.StatusNotFound, detailPostNotFound)
		return
	}
	writeJSON(w, http.StatusOK, internal.DeleteResult{Success: true, Message: "Post deleted successfully"})
}

func (s *Server) MediaHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.DB.GetPost(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailPostNotFound)
		return
	}
	w.Header().Set("Content-Type", post.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(post.Data)))
	_, _ = w.Write(post.Data)
}

// ownedPost loads the post named in the path and checks the caller owns it.
// It writes the error response itself when it returns false.
func (s *Server) ownedPost(w http.ResponseWriter, r *http.Request, action string) (StoredPost, bool) {
	user, _ := userFromContext(r.Context())
	post, err := s.DB.GetPost(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailPostNotFound)
		return StoredPost{}, false
	}
	if post.UserID != user.ID {
		writeDetail(w, http.StatusForbidden, "Not authorized to "+action+" this post")
		return StoredPost{}, false
	}
	return post, true
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if err := r.ParseMultipartForm(s.MaxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

func (s *Server) mediaURL(r *http.Request, id string) string {
	base := s.PublicURL
	if base == "" {
		base = "http://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/media/" + id
}

type media struct {
	name        string
	contentType string
	fileType    string
	data        []byte
}

// readMedia returns nil, nil when the request has no file part.
func readMedia(r *http.Request) (*media, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["file"]) == 0 {
		return nil, nil
	}
	header := r.MultipartForm.File["file"][0]
	data, err := readPart(header)
	if err != nil {
		return nil, err
	}

	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = internal.ContentType(header.Filename)
	}
	if ft := internal.FileTypeOf(ct); ft == "" {
		if sniffed := http.DetectContentType(data); internal.FileTypeOf(sniffed) != "" {
			ct = sniffed
		}
	}
	fileType := internal.FileTypeOf(ct)
	if fileType == "" {
		return nil, errors.New("Only image and video files are allowed")
	}
	return &media{name: header.Filename, contentType: ct, fileType: fileType, data: data}, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
