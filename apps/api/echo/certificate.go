package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/spreadsheet"
)

const maxUploadSize = 32 << 20 // 32MB

type (
	BatchRequest struct {
		Items  []certificate.BatchItem `json:"items"`
		DryRun bool                    `json:"dry_run"`
	}

	LinkResponse struct {
		VerificationID string `json:"verification_id"`
		Link           string `json:"link"`
	}
)

type certificateApi struct {
	svc *certificate.Service
}

func registerCertificateAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *certificate.Service) {
	api := certificateApi{svc: svc}

	cg := g.Group("/certificates", auth)
	cg.POST("/batch", api.reconcile)
	cg.POST("/batch/upload", api.upload)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/link", api.link)
}

// Handlers

func (api *certificateApi) reconcile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data BatchRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchRequest")
	}

	res, err := api.svc.Reconcile(ctx.Request().Context(), claims.PartitionID, data.Items, certificate.ReconcileOptions{
		DryRun: data.DryRun,
		Actor:  claims.Actor(),
	})
	if err != nil {
		return errors.Wrap(err, "reconciling batch")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *certificateApi) upload(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ctx.Request().Body = http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxUploadSize)

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "a .xlsx or .csv file is required"})
	}
	var dryRun bool
	if v := ctx.FormValue("dry_run"); v != "" {
		if dryRun, err = strconv.ParseBool(v); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "dry_run", Error: "must be a boolean"})
		}
	}

	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	items, err := spreadsheet.Parse(fh.Filename, src)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: err.Error()})
	}

	res, err := api.svc.Reconcile(ctx.Request().Context(), claims.PartitionID, items, certificate.ReconcileOptions{
		DryRun: dryRun,
		Actor:  claims.Actor(),
	})
	if err != nil {
		return errors.Wrap(err, "reconciling batch")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *certificateApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := new(certificate.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings

	certs, err := api.svc.Filter(ctx.Request().Context(), claims.PartitionID, *filter)
	if err != nil {
		return errors.Wrap(err, "filtering certificates")
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	cert, err := api.svc.GetByID(ctx.Request().Context(), claims.PartitionID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) link(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	cert, err := api.svc.GetByID(reqCtx, claims.PartitionID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting certificate")
	}
	link, err := api.svc.Link(reqCtx, claims.PartitionID, cert.ID)
	if err != nil {
		return errors.Wrap(err, "building link")
	}
	return ctx.JSON(http.StatusOK, LinkResponse{VerificationID: cert.VerificationID, Link: link})
}
