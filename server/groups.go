package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/legit-games/eveauth/dto"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

func (s *Server) handleGetGroup(c *gin.Context) {
	g, err := s.Groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// handlePutGroup creates a group (core.group.create) or replaces the rules of
// an existing one (core.group.manage.<id>).
func (s *Server) handlePutGroup(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	var req dto.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.MalformedArgument("group", err.Error()))
		return
	}

	g, err := s.Groups.Get(ctx, id)
	status := http.StatusOK
	switch {
	case errors.Is(err, errors.ErrNotFound):
		if !s.require(c, permission.GroupCreate) {
			return
		}
		creator := currentUser(c).ID
		g = &models.Group{ID: id, CreatorID: &creator}
		status = http.StatusCreated
	case err != nil:
		fail(c, err)
		return
	default:
		if !s.require(c, permission.GroupManage(id)) {
			return
		}
	}
	req.Apply(g)
	if err := s.Groups.Save(ctx, g); err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, g)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	id := c.Param("id")
	if !s.require(c, permission.GroupManage(id)) {
		return
	}
	if err := s.Groups.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleRenameGroup(c *gin.Context) {
	id := c.Param("id")
	if !s.require(c, permission.GroupManage(id)) {
		return
	}
	var req dto.RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.MalformedArgument("id", err.Error()))
		return
	}
	g, err := s.Groups.Rename(c.Request.Context(), id, req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleGrantGroupPermission(c *gin.Context) {
	var req dto.GroupPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.MalformedArgument("permission", err.Error()))
		return
	}
	held, _, err := s.permissions(c, currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Groups.GrantPermission(c.Request.Context(), held, c.Param("id"), req.Permission); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleRevokeGroupPermission(c *gin.Context) {
	held, _, err := s.permissions(c, currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Groups.RevokePermission(c.Request.Context(), held, c.Param("id"), c.Param("permission")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// ownedCharacter binds the acting character and requires the caller to own it.
func (s *Server) ownedCharacter(c *gin.Context) (*models.Character, bool) {
	var req dto.CharacterRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, errors.MalformedArgument("character", err.Error()))
		return nil, false
	}
	ch, err := s.Stores.Characters.Get(c.Request.Context(), req.Character)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if ch.OwnerID == nil || *ch.OwnerID != currentUser(c).ID {
		fail(c, errors.WithMessage(errors.ErrForbidden, "character is not yours"))
		return nil, false
	}
	return ch, true
}

func (s *Server) handleJoinGroup(c *gin.Context) {
	ch, found := s.ownedCharacter(c)
	if !found {
		return
	}
	if err := s.Groups.Join(c.Request.Context(), currentUser(c).ID, ch, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleRequestGroup(c *gin.Context) {
	ch, found := s.ownedCharacter(c)
	if !found {
		return
	}
	if err := s.Groups.Request(c.Request.Context(), currentUser(c).ID, ch, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleLeaveGroup(c *gin.Context) {
	ch, found := s.ownedCharacter(c)
	if !found {
		return
	}
	if err := s.Groups.Leave(c.Request.Context(), c.Param("id"), ch.ID); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// handleAcceptRequest accepts a pending membership request; it needs the
// group's manage permission.
func (s *Server) handleAcceptRequest(c *gin.Context) {
	id := c.Param("id")
	if !s.require(c, permission.GroupManage(id)) {
		return
	}
	charID, err := strconv.ParseInt(c.Param("character"), 10, 64)
	if err != nil {
		fail(c, errors.MalformedArgument("character", c.Param("character")))
		return
	}
	if err := s.Groups.Accept(c.Request.Context(), id, charID); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}
