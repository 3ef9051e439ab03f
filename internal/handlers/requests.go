package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/middleware"
	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/storage"
	"github.com/midrand-elite/meg-services/internal/validation"
)

const maxPhotosPerRequest = 10

type RequestHandler struct {
	Svc *requests.Service
	Log *zap.Logger
}

// requestView is a request as a list row or detail modal renders it.
type requestView struct {
	models.ServiceRequest
	Badge   requests.Badge    `json:"badge"`
	Actions []requests.Action `json:"actions"`
}

func viewOf(u *models.User, r *models.ServiceRequest) requestView {
	return requestView{
		ServiceRequest: *r,
		Badge:          requests.BadgeFor(r.Status),
		Actions:        requests.Actions(u, r),
	}
}

func viewsOf(u *models.User, list []models.ServiceRequest) []requestView {
	out := make([]requestView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(u, &list[i]))
	}
	return out
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid request id")
	}
	return id, nil
}

func (h *RequestHandler) List(c *fiber.Ctx) error {
	u := middleware.CurrentUser(c)
	list, err := h.Svc.List(c.UserContext(), u)
	if err != nil {
		return requestFail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    viewsOf(u, list),
	})
}

func (h *RequestHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u := middleware.CurrentUser(c)
	r, err := h.Svc.Get(c.UserContext(), u, id)
	if err != nil {
		return requestFail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    viewOf(u, r),
	})
}

func photoFiles(form *multipart.Form) []storage.File {
	if form == nil {
		return nil
	}
	headers := append([]*multipart.FileHeader{}, form.File["photos"]...)
	headers = append(headers, form.File["photos[]"]...)

	files := make([]storage.File, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, storage.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return files
}

// Create accepts the new-request form as multipart with optional photos.
func (h *RequestHandler) Create(c *fiber.Ctx) error {
	u := middleware.CurrentUser(c)

	in := requests.NewRequest{
		NewRequest: validation.NewRequest{
			ServiceID: c.FormValue("service_id"),
			Phone:     c.FormValue("phone"),
			Address:   c.FormValue("address"),
			City:      c.FormValue("city"),
			Quantity:  c.FormValue("quantity"),
		},
		Title:   c.FormValue("title"),
		Details: c.FormValue("details"),
		Suburb:  c.FormValue("suburb"),
	}

	var files []storage.File
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid multipart form")
		}
		files = photoFiles(form)
	}
	if len(files) > maxPhotosPerRequest {
		errs := validation.FieldErrors{}
		errs.Add("photos", "You can attach at most 10 photos.")
		return validationFail(c, errs)
	}

	res, err := h.Svc.Add(c.UserContext(), u, in, files)
	if errors.Is(err, requests.ErrPhotoUpload) {
		var failed []requests.FailedPhoto
		if res != nil {
			failed = res.FailedPhotos
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to upload photos",
			"errors":  fiber.Map{"photos": failed},
		})
	}
	if err != nil {
		return requestFail(c, err)
	}

	msg := "Service request submitted"
	if len(res.FailedPhotos) > 0 {
		msg = "Service request submitted, but some photos failed to upload"
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": msg,
		"data": fiber.Map{
			"request":       viewOf(u, res.Request),
			"failed_photos": res.FailedPhotos,
		},
	})
}

func (h *RequestHandler) Accept(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u := middleware.CurrentUser(c)
	r, err := h.Svc.Accept(c.UserContext(), u, id)
	if err != nil {
		return requestFail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Request accepted", "data": viewOf(u, r)})
}

func (h *RequestHandler) Cancel(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u := middleware.CurrentUser(c)
	r, err := h.Svc.Cancel(c.UserContext(), u, id)
	if err != nil {
		return requestFail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Request cancelled", "data": viewOf(u, r)})
}

type statusReq struct {
	Status   string  `json:"status"`
	WorkerID *string `json:"worker_id"`
}

func (h *RequestHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req statusReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	var workerID *uuid.UUID
	if req.WorkerID != nil && *req.WorkerID != "" {
		wid, err := uuid.Parse(*req.WorkerID)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid worker id")
		}
		workerID = &wid
	}

	u := middleware.CurrentUser(c)
	status := models.RequestStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	r, err := h.Svc.UpdateStatus(c.UserContext(), u, id, status, workerID)
	if err != nil {
		return requestFail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Status updated to " + requests.BadgeFor(r.Status).Label,
		"data":    viewOf(u, r),
	})
}
