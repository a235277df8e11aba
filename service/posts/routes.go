package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/cmd/utils"
	"github.com/studysphere/studysphere-server/service/protocol"
	"gorm.io/gorm"
)

// Broadcaster pushes an encoded event frame to every member of a room.
// Satisfied by the websocket hub.
type Broadcaster interface {
	BroadcastToRoom(room string, frame []byte)
}

type PostHandler struct {
	repo     PostRepository
	db       *gorm.DB
	hub      Broadcaster
	validate *validator.Validate
}

func NewPostHandler(repo PostRepository, db *gorm.DB, hub Broadcaster) *PostHandler {
	return &PostHandler{
		repo:     repo,
		db:       db,
		hub:      hub,
		validate: validator.New(),
	}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/group_posts", utils.AuthMiddleware(h.CreatePost)).Methods("POST")
	router.HandleFunc("/group_posts/{groupId}", h.GetGroupPosts).Methods("GET")
	router.HandleFunc("/group_posts/post/{id}", h.GetPost).Methods("GET")
	router.HandleFunc("/group_posts/post/{id}", utils.AuthMiddleware(h.UpdatePost)).Methods("PUT")
	router.HandleFunc("/group_posts/post/{id}", utils.AuthMiddleware(h.DeletePost)).Methods("DELETE")
	router.HandleFunc("/group_posts/post/{id}/attachments", utils.AuthMiddleware(h.UploadAttachment)).Methods("POST")
}

type createPostRequest struct {
	GroupID     string   `json:"group_id" validate:"required"`
	Content     string   `json:"content" validate:"required,min=1,max=2000"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,uri"`
}

// CreatePost stores a new group post and broadcasts it to the group's room.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	groupID, err := strconv.ParseUint(req.GroupID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}
	var group models.StudyGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, url := range req.Attachments {
		attachments = append(attachments, models.Attachment{
			URL:      url,
			Category: utils.MimeCategory(url),
		})
	}

	post := models.GroupPost{
		GroupID:     req.GroupID,
		UserID:      fmt.Sprint(userID),
		Content:     req.Content,
		Attachments: attachments,
	}

	if err := h.repo.CreatePost(r.Context(), &post); err != nil {
		http.Error(w, "Error creating post", http.StatusInternalServerError)
		return
	}

	if frame, err := protocol.Marshal(protocol.EventNewGroupPost, post); err == nil {
		h.hub.BroadcastToRoom(protocol.GroupRoom(post.GroupID), frame)
	} else {
		log.Printf("error encoding new post broadcast: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Post created successfully",
		"post":    post,
	})
}

// GetGroupPosts retrieves all posts for a group, newest first.
func (h *PostHandler) GetGroupPosts(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID := vars["groupId"]

	postList, err := h.repo.GetPostsByGroup(r.Context(), groupID)
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}
	if postList == nil {
		postList = []models.GroupPost{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Posts retrieved successfully",
		"data":    postList,
	})
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	post, err := h.repo.GetPostByID(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}

// UpdatePost changes a post's content. Only the author may edit.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)

	var updateData struct {
		Content string `json:"content" validate:"required,min=1,max=2000"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(updateData); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	post, err := h.repo.GetPostByID(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		}
		return
	}
	if post.UserID != fmt.Sprint(userID) {
		http.Error(w, "Only the author can edit this post", http.StatusForbidden)
		return
	}

	updated, err := h.repo.UpdateContent(r.Context(), vars["id"], updateData.Content)
	if err != nil {
		http.Error(w, "Error updating post", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DeletePost removes a post. Only the author may delete.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)

	post, err := h.repo.GetPostByID(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		}
		return
	}
	if post.UserID != fmt.Sprint(userID) {
		http.Error(w, "Only the author can delete this post", http.StatusForbidden)
		return
	}

	if err := h.repo.DeletePost(r.Context(), vars["id"]); err != nil {
		http.Error(w, "Error deleting post", http.StatusInternalServerError)
		return
	}

	for _, attachment := range post.Attachments {
		utils.DeleteAttachment(attachment.URL)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Post deleted successfully",
	})
}

// UploadAttachment stores an uploaded file and appends it to the post.
func (h *PostHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)

	post, err := h.repo.GetPostByID(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		}
		return
	}
	if post.UserID != fmt.Sprint(userID) {
		http.Error(w, "Only the author can attach files", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(utils.MaxAttachmentSize); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Attachment file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, category, err := utils.SaveAttachment(file, header)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error saving attachment: %v", err), http.StatusInternalServerError)
		return
	}

	attachment := models.Attachment{URL: url, Category: category}
	if err := h.repo.AddAttachment(r.Context(), vars["id"], attachment); err != nil {
		utils.DeleteAttachment(url)
		http.Error(w, "Error saving attachment record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(attachment)
}
