package static

import "github.com/tournevent/tarif/pkg/tariff"

// Zones are counted outward from Algiers: 1 is the capital region, 2 the northern
// Tell, 3 the high plateaus, 4 the northern Sahara and 5 the far south.
var provinces = []tariff.Province{
	{Code: 1, Name: "Adrar", Zone: 4},
	{Code: 2, Name: "Chlef", Zone: 2},
	{Code: 3, Name: "Laghouat", Zone: 3},
	{Code: 4, Name: "Oum El Bouaghi", Zone: 3},
	{Code: 5, Name: "Batna", Zone: 3},
	{Code: 6, Name: "Béjaïa", Zone: 2},
	{Code: 7, Name: "Biskra", Zone: 3},
	{Code: 8, Name: "Béchar", Zone: 4},
	{Code: 9, Name: "Blida", Zone: 1},
	{Code: 10, Name: "Bouira", Zone: 2},
	{Code: 11, Name: "Tamanrasset", Zone: 5},
	{Code: 12, Name: "Tébessa", Zone: 3},
	{Code: 13, Name: "Tlemcen", Zone: 2},
	{Code: 14, Name: "Tiaret", Zone: 2},
	{Code: 15, Name: "Tizi Ouzou", Zone: 2},
	{Code: 16, Name: "Alger", Zone: 1},
	{Code: 17, Name: "Djelfa", Zone: 3},
	{Code: 18, Name: "Jijel", Zone: 2},
	{Code: 19, Name: "Sétif", Zone: 2},
	{Code: 20, Name: "Saïda", Zone: 3},
	{Code: 21, Name: "Skikda", Zone: 2},
	{Code: 22, Name: "Sidi Bel Abbès", Zone: 2},
	{Code: 23, Name: "Annaba", Zone: 2},
	{Code: 24, Name: "Guelma", Zone: 2},
	{Code: 25, Name: "Constantine", Zone: 2},
	{Code: 26, Name: "Médéa", Zone: 2},
	{Code: 27, Name: "Mostaganem", Zone: 2},
	{Code: 28, Name: "M'Sila", Zone: 3},
	{Code: 29, Name: "Mascara", Zone: 2},
	{Code: 30, Name: "Ouargla", Zone: 4},
	{Code: 31, Name: "Oran", Zone: 2},
	{Code: 32, Name: "El Bayadh", Zone: 3},
	{Code: 33, Name: "Illizi", Zone: 5},
	{Code: 34, Name: "Bordj Bou Arréridj", Zone: 2},
	{Code: 35, Name: "Boumerdès", Zone: 1},
	{Code: 36, Name: "El Tarf", Zone: 2},
	{Code: 37, Name: "Tindouf", Zone: 5},
	{Code: 38, Name: "Tissemsilt", Zone: 2},
	{Code: 39, Name: "El Oued", Zone: 4},
	{Code: 40, Name: "Khenchela", Zone: 3},
	{Code: 41, Name: "Souk Ahras", Zone: 2},
	{Code: 42, Name: "Tipaza", Zone: 1},
	{Code: 43, Name: "Mila", Zone: 2},
	{Code: 44, Name: "Aïn Defla", Zone: 2},
	{Code: 45, Name: "Naâma", Zone: 3},
	{Code: 46, Name: "Aïn Témouchent", Zone: 2},
	{Code: 47, Name: "Ghardaïa", Zone: 4},
	{Code: 48, Name: "Relizane", Zone: 2},
	{Code: 49, Name: "Timimoun", Zone: 4},
	{Code: 50, Name: "Bordj Badji Mokhtar", Zone: 5},
	{Code: 51, Name: "Ouled Djellal", Zone: 3},
	{Code: 52, Name: "Béni Abbès", Zone: 4},
	{Code: 53, Name: "In Salah", Zone: 5},
	{Code: 54, Name: "In Guezzam", Zone: 5},
	{Code: 55, Name: "Touggourt", Zone: 4},
	{Code: 56, Name: "Djanet", Zone: 5},
	{Code: 57, Name: "El M'Ghair", Zone: 4},
	{Code: 58, Name: "El Meniaa", Zone: 4},
}

// Communes beyond the chef-lieu of each province, for the busiest destinations.
var extraCommunes = []tariff.Commune{
	{Name: "Bab Ezzouar", ProvinceCode: 16, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "Bir Mourad Raïs", ProvinceCode: 16, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "Hydra", ProvinceCode: 16, IsDeliverable: true},
	{Name: "Dar El Beïda", ProvinceCode: 16, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "Bir El Djir", ProvinceCode: 31, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "Es Senia", ProvinceCode: 31, IsDeliverable: true},
	{Name: "El Khroub", ProvinceCode: 25, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "El Eulma", ProvinceCode: 19, HasCounterDelivery: true, IsDeliverable: true},
	{Name: "Boufarik", ProvinceCode: 9, IsDeliverable: true},
}

// The chef-lieu shares the province name except where listed here.
var capitalNames = map[int]string{
	16: "Alger Centre",
}

type zonePrice struct {
	home   float64
	office *float64
}

var zonePrices = map[int]zonePrice{
	1: {home: 400, office: tariff.Float(300)},
	2: {home: 600, office: tariff.Float(450)},
	3: {home: 750, office: tariff.Float(550)},
	4: {home: 900, office: tariff.Float(650)},
	5: {home: 1200, office: tariff.Float(900)},
}
