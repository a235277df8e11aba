package groups

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/cmd/utils"
	"gorm.io/gorm"
)

type GroupHandler struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewGroupHandler(db *gorm.DB) *GroupHandler {
	return &GroupHandler{db: db, validate: validator.New()}
}

func (h *GroupHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/groups", utils.AuthMiddleware(h.CreateGroup)).Methods("POST")
	router.HandleFunc("/groups", h.GetGroups).Methods("GET")
	router.HandleFunc("/groups/{id}", h.GetGroup).Methods("GET")
	router.HandleFunc("/groups/{id}", utils.AuthMiddleware(h.UpdateGroup)).Methods("PUT")
	router.HandleFunc("/groups/{id}", utils.AuthMiddleware(h.DeleteGroup)).Methods("DELETE")
	router.HandleFunc("/groups/{id}/join", utils.AuthMiddleware(h.JoinGroup)).Methods("POST")
	router.HandleFunc("/groups/{id}/leave", utils.AuthMiddleware(h.LeaveGroup)).Methods("POST")
	router.HandleFunc("/groups/{id}/members", h.GetMembers).Methods("GET")
	router.HandleFunc("/users/{userId}/groups", h.GetUserGroups).Methods("GET")
}

type groupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Topic       string `json:"topic" validate:"max=255"`
}

// CreateGroup creates a study group; the creator becomes its first member.
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	group := models.StudyGroup{
		Name:        req.Name,
		Description: req.Description,
		Topic:       req.Topic,
		CreatorID:   userID,
	}

	tx := h.db.Begin()

	if err := tx.Create(&group).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating group", http.StatusInternalServerError)
		return
	}

	membership := models.GroupMembership{GroupID: group.ID, UserID: userID}
	if err := tx.Create(&membership).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error adding creator membership", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving group", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(group)
}

// GetGroups retrieves all groups with pagination.
func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 10

	var groupList []models.StudyGroup
	var total int64

	query := h.db.Model(&models.StudyGroup{}).Preload("Creator")
	query.Count(&total)

	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&groupList).Error; err != nil {
		http.Error(w, "Error retrieving groups", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"groups":      groupList,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var group models.StudyGroup
	if err := h.db.Preload("Creator").Preload("Members.User").First(&group, groupID).Error; err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var group models.StudyGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}
	if group.CreatorID != userID {
		http.Error(w, "Only the creator can update this group", http.StatusForbidden)
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	group.Name = req.Name
	group.Description = req.Description
	group.Topic = req.Topic

	if err := h.db.Save(&group).Error; err != nil {
		http.Error(w, "Error updating group", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var group models.StudyGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}
	if group.CreatorID != userID {
		http.Error(w, "Only the creator can delete this group", http.StatusForbidden)
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting memberships", http.StatusInternalServerError)
		return
	}

	if err := tx.Delete(&group).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting group", http.StatusInternalServerError)
		return
	}

	tx.Commit()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Group deleted successfully",
	})
}

// JoinGroup adds the authenticated user to a group. Joining a group the user
// already belongs to succeeds without creating a duplicate membership.
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var group models.StudyGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}

	var membership models.GroupMembership
	result := h.db.FirstOrCreate(&membership, models.GroupMembership{
		GroupID: uint(groupID),
		UserID:  userID,
	})
	if result.Error != nil {
		http.Error(w, "Error joining group", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Joined group successfully",
		"group_id": group.ID,
		"user_id":  userID,
	})
}

func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	result := h.db.Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMembership{})
	if result.Error != nil {
		http.Error(w, "Error leaving group", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Not a member of this group", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Left group successfully",
	})
}

func (h *GroupHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var members []models.GroupMembership
	if err := h.db.Where("group_id = ?", groupID).Preload("User").Find(&members).Error; err != nil {
		http.Error(w, "Error retrieving members", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

func (h *GroupHandler) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var groupList []models.StudyGroup
	if err := h.db.Joins("JOIN group_memberships ON group_memberships.group_id = study_groups.id").
		Where("group_memberships.user_id = ? AND group_memberships.deleted_at IS NULL", userID).
		Find(&groupList).Error; err != nil {
		http.Error(w, "Error retrieving groups", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groupList)
}
