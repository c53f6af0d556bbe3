package dto

import "github.com/cuongbtq/lecturecast/internal/domain"

type ListPersonasResponse struct {
	Personas []domain.Persona `json:"personas"`
}
