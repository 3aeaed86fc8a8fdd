package dto

import "github.com/wsiviewer/backend/internal/domain/viewer"

// SelectFindingRequest selects the finding of the annotation being configured
type SelectFindingRequest struct {
	CodeValue string `json:"code_value" binding:"required"`
}

// SelectGeometryTypeRequest selects the geometry of the annotation being configured
type SelectGeometryTypeRequest struct {
	GeometryType viewer.GeometryType `json:"geometry_type" binding:"required,oneof=point circle box polygon freehandpolygon line freehandline"`
}

// CodedConceptRequest is a coded concept sent by the client
type CodedConceptRequest struct {
	CodeValue              string `json:"value" binding:"required"`
	CodingSchemeDesignator string `json:"scheme_designator" binding:"required"`
	CodeMeaning            string `json:"meaning"`
}

// ToConcept converts the request into a coded concept
func (r CodedConceptRequest) ToConcept() viewer.CodedConcept {
	return viewer.CodedConcept{
		CodeValue:              r.CodeValue,
		CodingSchemeDesignator: r.CodingSchemeDesignator,
		CodeMeaning:            r.CodeMeaning,
	}
}

// SelectEvaluationRequest answers an evaluation question of the selected finding
type SelectEvaluationRequest struct {
	Name      CodedConceptRequest `json:"name"`
	ValueCode string              `json:"value_code" binding:"required"`
}

// SetMeasurementRequest toggles the measurement markup
type SetMeasurementRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// StoredInstancesResponse lists the instances accepted by the archive
type StoredInstancesResponse struct {
	StudyInstanceUID string           `json:"study_instance_uid"`
	Instances        []StoredInstance `json:"instances"`
}

// StoredInstance is one instance accepted by the archive
type StoredInstance struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	SOPClassUID    string `json:"sop_class_uid"`
	ServerID       string `json:"server_id"`
}
