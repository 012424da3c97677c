package flow

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("FLOW")

var (
	// Flow errors
	CodeFlowNotFound        = ErrRegistry.Register("FLOW_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Flow not found")
	CodeFlowAccessDenied    = ErrRegistry.Register("FLOW_ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Flow does not belong to this account")
	CodeInvalidFlowData     = ErrRegistry.Register("INVALID_FLOW_DATA", errx.TypeValidation, http.StatusBadRequest, "Invalid flow data")
	CodeInvalidFlowStatus   = ErrRegistry.Register("INVALID_FLOW_STATUS", errx.TypeValidation, http.StatusBadRequest, "Invalid flow status")
	CodeFlowNotPublished    = ErrRegistry.Register("FLOW_NOT_PUBLISHED", errx.TypeBusiness, http.StatusConflict, "Flow is not published")
	CodeFlowGraphInvalid    = ErrRegistry.Register("FLOW_GRAPH_INVALID", errx.TypeValidation, http.StatusBadRequest, "Flow graph is invalid")
	CodeMissingStartNode    = ErrRegistry.Register("MISSING_START_NODE", errx.TypeValidation, http.StatusBadRequest, "Flow has no start node")

	// Node errors
	CodeNodeNotFound       = ErrRegistry.Register("NODE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Node not found")
	CodeInvalidNodeData    = ErrRegistry.Register("INVALID_NODE_DATA", errx.TypeValidation, http.StatusBadRequest, "Invalid node data")
	CodeNodeDetailNotFound = ErrRegistry.Register("NODE_DETAIL_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Node detail not found")
	CodeInvalidCategory    = ErrRegistry.Register("INVALID_CATEGORY", errx.TypeValidation, http.StatusBadRequest, "Invalid node category")

	// Settings errors
	CodeFlowSettingsNotFound = ErrRegistry.Register("FLOW_SETTINGS_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Flow settings not found")
)

// Error constructor functions
func ErrFlowNotFound() *errx.Error {
	return ErrRegistry.New(CodeFlowNotFound)
}

func ErrFlowAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeFlowAccessDenied)
}

func ErrInvalidFlowData() *errx.Error {
	return ErrRegistry.New(CodeInvalidFlowData)
}

func ErrInvalidFlowStatus() *errx.Error {
	return ErrRegistry.New(CodeInvalidFlowStatus)
}

func ErrFlowNotPublished() *errx.Error {
	return ErrRegistry.New(CodeFlowNotPublished)
}

func ErrFlowGraphInvalid() *errx.Error {
	return ErrRegistry.New(CodeFlowGraphInvalid)
}

func ErrMissingStartNode() *errx.Error {
	return ErrRegistry.New(CodeMissingStartNode)
}

func ErrNodeNotFound() *errx.Error {
	return ErrRegistry.New(CodeNodeNotFound)
}

func ErrInvalidNodeData() *errx.Error {
	return ErrRegistry.New(CodeInvalidNodeData)
}

func ErrNodeDetailNotFound() *errx.Error {
	return ErrRegistry.New(CodeNodeDetailNotFound)
}

func ErrInvalidCategory() *errx.Error {
	return ErrRegistry.New(CodeInvalidCategory)
}

func ErrFlowSettingsNotFound() *errx.Error {
	return ErrRegistry.New(CodeFlowSettingsNotFound)
}
